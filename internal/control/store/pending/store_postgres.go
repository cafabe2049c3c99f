package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// PostgresStore persists the pending-operation ledger. Pure I/O; idempotency
// decisions ride on conditional UPDATEs so concurrent confirmations for the
// same message ID cannot double-apply.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the ledger table. Applied by migrations in
// deployment and by integration tests directly.
const Schema = `
CREATE TABLE IF NOT EXISTS pending_operations (
	message_id   TEXT PRIMARY KEY,
	account      UUID NOT NULL,
	kind         TEXT NOT NULL,
	strategy     TEXT NOT NULL DEFAULT '',
	amount       BIGINT NOT NULL DEFAULT 0,
	shares       BIGINT NOT NULL DEFAULT 0,
	recipient    TEXT NOT NULL DEFAULT '',
	priority     TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	confirmed    BOOLEAN NOT NULL DEFAULT FALSE,
	confirmed_at TIMESTAMPTZ,
	success      BOOLEAN NOT NULL DEFAULT FALSE,
	error_code   TEXT NOT NULL DEFAULT '',
	abandoned    BOOLEAN NOT NULL DEFAULT FALSE,
	abandoned_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS pending_operations_account_idx ON pending_operations (account, created_at DESC);
CREATE INDEX IF NOT EXISTS pending_operations_unconfirmed_idx ON pending_operations (created_at) WHERE NOT confirmed;
`

func (s *PostgresStore) Record(ctx context.Context, op *models.PendingOperation) error {
	query := `
		INSERT INTO pending_operations
			(message_id, account, kind, strategy, amount, shares, recipient, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		op.MessageID.String(),
		op.Account.String(),
		string(op.Kind),
		op.Strategy.String(),
		op.Amount,
		op.Shares,
		op.Recipient.String(),
		string(op.Priority),
		op.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("record pending operation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Confirm(ctx context.Context, msgID id.MessageID, success bool, errorCode string, at time.Time) (ConfirmResult, error) {
	// The WHERE NOT confirmed guard makes the first confirmation win and
	// every later one a no-op, regardless of interleaving.
	query := `
		UPDATE pending_operations
		SET confirmed = TRUE, confirmed_at = $2, success = $3, error_code = $4
		WHERE message_id = $1 AND NOT confirmed
	`
	res, err := s.db.ExecContext(ctx, query, msgID.String(), at, success, errorCode)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("confirm pending operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("confirm pending operation: %w", err)
	}

	op, err := s.Get(ctx, msgID)
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{AlreadyConfirmed: affected == 0, Op: op}, nil
}

const selectColumns = `
	message_id, account, kind, strategy, amount, shares, recipient, priority,
	created_at, confirmed, confirmed_at, success, error_code, abandoned, abandoned_at
`

func (s *PostgresStore) Get(ctx context.Context, msgID id.MessageID) (*models.PendingOperation, error) {
	query := `SELECT ` + selectColumns + ` FROM pending_operations WHERE message_id = $1`
	op, err := scanPendingOperation(s.db.QueryRowContext(ctx, query, msgID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get pending operation: %w", err)
	}
	return op, nil
}

func (s *PostgresStore) List(ctx context.Context, account id.AccountID, status models.OperationStatus, limit int) ([]*models.PendingOperation, error) {
	query := `SELECT ` + selectColumns + ` FROM pending_operations WHERE TRUE`
	args := []any{}
	if !account.IsNil() {
		args = append(args, account.String())
		query += fmt.Sprintf(" AND account = $%d", len(args))
	}
	switch status {
	case models.StatusPending:
		query += " AND NOT confirmed"
	case models.StatusConfirmedSuccess:
		query += " AND confirmed AND success"
	case models.StatusConfirmedFailure:
		query += " AND confirmed AND NOT success"
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}
	defer rows.Close()
	return collectPendingOperations(rows)
}

func (s *PostgresStore) ListStale(ctx context.Context, olderThan time.Duration, now time.Time) ([]*models.PendingOperation, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM pending_operations
		WHERE NOT confirmed AND NOT abandoned AND created_at < $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, now.Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("list stale pending operations: %w", err)
	}
	defer rows.Close()
	return collectPendingOperations(rows)
}

func (s *PostgresStore) MarkAbandoned(ctx context.Context, msgID id.MessageID, at time.Time) error {
	query := `
		UPDATE pending_operations
		SET abandoned = TRUE, abandoned_at = $2
		WHERE message_id = $1 AND NOT confirmed
	`
	res, err := s.db.ExecContext(ctx, query, msgID.String(), at)
	if err != nil {
		return fmt.Errorf("mark abandoned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark abandoned: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, msgID); getErr != nil {
			return getErr
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingOperation(row rowScanner) (*models.PendingOperation, error) {
	var (
		op          models.PendingOperation
		msgID       string
		account     string
		kind        string
		strategy    string
		recipient   string
		priority    string
		confirmedAt sql.NullTime
		abandonedAt sql.NullTime
	)
	err := row.Scan(&msgID, &account, &kind, &strategy, &op.Amount, &op.Shares,
		&recipient, &priority, &op.CreatedAt, &op.Confirmed, &confirmedAt,
		&op.Success, &op.ErrorCode, &op.Abandoned, &abandonedAt)
	if err != nil {
		return nil, err
	}

	op.MessageID = id.MessageID(msgID)
	acct, err := id.ParseAccountID(account)
	if err != nil {
		return nil, err
	}
	op.Account = acct
	op.Kind = id.OperationKind(kind)
	op.Strategy = id.StrategyID(strategy)
	op.Recipient = id.Address(recipient)
	op.Priority = id.Priority(priority)
	if confirmedAt.Valid {
		op.ConfirmedAt = &confirmedAt.Time
	}
	if abandonedAt.Valid {
		op.AbandonedAt = &abandonedAt.Time
	}
	return &op, nil
}

func collectPendingOperations(rows *sql.Rows) ([]*models.PendingOperation, error) {
	var out []*models.PendingOperation
	for rows.Next() {
		op, err := scanPendingOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending operation: %w", err)
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending operations: %w", err)
	}
	return out, nil
}
