package position

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vaultbridge/internal/execution/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// PostgresStore persists the position book. Execute serializes concurrent
// mutations of one position through SELECT ... FOR UPDATE; the zero row is
// created with ON CONFLICT DO NOTHING so two first deposits cannot race.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS positions (
	account         UUID NOT NULL,
	strategy        TEXT NOT NULL,
	shares          BIGINT NOT NULL DEFAULT 0 CHECK (shares >= 0),
	deposited_value BIGINT NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (account, strategy)
);
`

func (s *PostgresStore) Get(ctx context.Context, account id.AccountID, strategy id.StrategyID) (*models.Position, error) {
	query := `
		SELECT account, strategy, shares, deposited_value, updated_at
		FROM positions WHERE account = $1 AND strategy = $2
	`
	return scanPosition(s.db.QueryRowContext(ctx, query, account.String(), strategy.String()))
}

func (s *PostgresStore) ListByAccount(ctx context.Context, account id.AccountID) ([]*models.Position, error) {
	query := `
		SELECT account, strategy, shares, deposited_value, updated_at
		FROM positions WHERE account = $1 ORDER BY strategy
	`
	rows, err := s.db.QueryContext(ctx, query, account.String())
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Execute(ctx context.Context, account id.AccountID, strategy id.StrategyID, fn func(*models.Position) error) (*models.Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin position tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO positions (account, strategy, shares)
		VALUES ($1, $2, 0)
		ON CONFLICT (account, strategy) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, account.String(), strategy.String()); err != nil {
		return nil, fmt.Errorf("seed position: %w", err)
	}

	query := `
		SELECT account, strategy, shares, deposited_value, updated_at
		FROM positions WHERE account = $1 AND strategy = $2 FOR UPDATE
	`
	pos, err := scanPosition(tx.QueryRowContext(ctx, query, account.String(), strategy.String()))
	if err != nil {
		return nil, err
	}

	if err := fn(pos); err != nil {
		return nil, err
	}

	update := `
		UPDATE positions SET shares = $3, deposited_value = $4, updated_at = $5
		WHERE account = $1 AND strategy = $2
	`
	if _, err := tx.ExecContext(ctx, update,
		pos.Account.String(), pos.Strategy.String(), pos.Shares, pos.DepositedValue, pos.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit position tx: %w", err)
	}
	return pos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var (
		pos        models.Position
		rawAccount string
		rawStrat   string
	)
	err := row.Scan(&rawAccount, &rawStrat, &pos.Shares, &pos.DepositedValue, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan position: %w", err)
	}

	pos.Account, err = id.ParseAccountID(rawAccount)
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}
	pos.Strategy = id.StrategyID(rawStrat)
	return &pos, nil
}
