package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// PostgresStore persists the account registry. Execute rides on
// SELECT ... FOR UPDATE so concurrent mutations of one account serialize.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             UUID PRIMARY KEY,
	label          TEXT NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	registered_at  TIMESTAMPTZ NOT NULL,
	deactivated_at TIMESTAMPTZ
);
`

func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, label, active, registered_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query,
		account.ID.String(), account.Label, account.Active, account.RegisteredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	query := `
		SELECT id, label, active, registered_at, deactivated_at
		FROM accounts WHERE id = $1
	`
	return scanAccount(s.db.QueryRowContext(ctx, query, accountID.String()))
}

func (s *PostgresStore) List(ctx context.Context, activeOnly bool) ([]*models.Account, error) {
	query := `
		SELECT id, label, active, registered_at, deactivated_at
		FROM accounts
	`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY registered_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Execute(ctx context.Context, accountID id.AccountID, fn func(*models.Account) error) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin account tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT id, label, active, registered_at, deactivated_at
		FROM accounts WHERE id = $1 FOR UPDATE
	`
	account, err := scanAccount(tx.QueryRowContext(ctx, query, accountID.String()))
	if err != nil {
		return nil, err
	}

	if err := fn(account); err != nil {
		return nil, err
	}

	update := `
		UPDATE accounts SET label = $2, active = $3, deactivated_at = $4
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		account.ID.String(), account.Label, account.Active, account.DeactivatedAt,
	); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit account tx: %w", err)
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account       models.Account
		rawID         string
		deactivatedAt sql.NullTime
	)
	err := row.Scan(&rawID, &account.Label, &account.Active, &account.RegisteredAt, &deactivatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.ID, err = id.ParseAccountID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if deactivatedAt.Valid {
		account.DeactivatedAt = &deactivatedAt.Time
	}
	return &account, nil
}
