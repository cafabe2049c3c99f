package strategies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"vaultbridge/internal/execution/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// PostgresStore persists the strategy registry.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS strategies (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	asset          TEXT NOT NULL DEFAULT '',
	min_deposit    BIGINT NOT NULL DEFAULT 0,
	max_deposit    BIGINT NOT NULL DEFAULT 0,
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	registered_at  TIMESTAMPTZ NOT NULL,
	deactivated_at TIMESTAMPTZ
);
`

func (s *PostgresStore) Create(ctx context.Context, strategy *models.Strategy) error {
	query := `
		INSERT INTO strategies (id, name, asset, min_deposit, max_deposit, active, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		strategy.ID.String(), strategy.Name, strategy.Asset, strategy.MinDeposit,
		strategy.MaxDeposit, strategy.Active, strategy.RegisteredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create strategy: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, strategyID id.StrategyID) (*models.Strategy, error) {
	query := `
		SELECT id, name, asset, min_deposit, max_deposit, active, registered_at, deactivated_at
		FROM strategies WHERE id = $1
	`
	return scanStrategy(s.db.QueryRowContext(ctx, query, strategyID.String()))
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Strategy, error) {
	query := `
		SELECT id, name, asset, min_deposit, max_deposit, active, registered_at, deactivated_at
		FROM strategies ORDER BY registered_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var out []*models.Strategy
	for rows.Next() {
		strategy, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, strategy)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Execute(ctx context.Context, strategyID id.StrategyID, fn func(*models.Strategy) error) (*models.Strategy, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin strategy tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT id, name, asset, min_deposit, max_deposit, active, registered_at, deactivated_at
		FROM strategies WHERE id = $1 FOR UPDATE
	`
	strategy, err := scanStrategy(tx.QueryRowContext(ctx, query, strategyID.String()))
	if err != nil {
		return nil, err
	}

	if err := fn(strategy); err != nil {
		return nil, err
	}

	update := `
		UPDATE strategies SET name = $2, asset = $3, min_deposit = $4,
			max_deposit = $5, active = $6, deactivated_at = $7
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		strategy.ID.String(), strategy.Name, strategy.Asset, strategy.MinDeposit,
		strategy.MaxDeposit, strategy.Active, strategy.DeactivatedAt,
	); err != nil {
		return nil, fmt.Errorf("update strategy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit strategy tx: %w", err)
	}
	return strategy, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (*models.Strategy, error) {
	var (
		strategy      models.Strategy
		rawID         string
		deactivatedAt sql.NullTime
	)
	err := row.Scan(&rawID, &strategy.Name, &strategy.Asset, &strategy.MinDeposit,
		&strategy.MaxDeposit, &strategy.Active, &strategy.RegisteredAt, &deactivatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan strategy: %w", err)
	}
	strategy.ID = id.StrategyID(rawID)
	if deactivatedAt.Valid {
		strategy.DeactivatedAt = &deactivatedAt.Time
	}
	return &strategy, nil
}
