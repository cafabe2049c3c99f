// Package pending is the control-domain ledger of in-flight operations,
// keyed by the relay-assigned message ID. The ledger is append-only: rows
// are confirmed or marked abandoned, never deleted, so the audit trail of
// every value movement survives.
package pending

import (
	"context"
	"time"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
)

// ConfirmResult records what a confirmation did to the ledger.
type ConfirmResult struct {
	// AlreadyConfirmed is true when the row was confirmed before this call;
	// the call was a no-op (at-least-once redelivery on the control side).
	AlreadyConfirmed bool
	Op               *models.PendingOperation
}

// Store is the pending-operation ledger. Implementations serialize mutations
// per message ID; distinct messages are independent units of work.
type Store interface {
	// Record inserts a new row. A duplicate message ID is a conflict:
	// at most one PendingOperation exists per message ID.
	Record(ctx context.Context, op *models.PendingOperation) error

	// Confirm marks the row confirmed with the given outcome. Idempotent:
	// a second confirmation for the same message ID is a no-op. An unknown
	// message ID returns sentinel.ErrNotFound.
	Confirm(ctx context.Context, msgID id.MessageID, success bool, errorCode string, at time.Time) (ConfirmResult, error)

	// Get returns one row by message ID, or sentinel.ErrNotFound.
	Get(ctx context.Context, msgID id.MessageID) (*models.PendingOperation, error)

	// List returns rows for an account, newest first, optionally filtered
	// by status. A nil account ID means all accounts.
	List(ctx context.Context, account id.AccountID, status models.OperationStatus, limit int) ([]*models.PendingOperation, error)

	// ListStale returns unconfirmed, unabandoned rows created before the
	// cutoff. Feeds the operator stale-retry tooling; nothing is
	// resent automatically.
	ListStale(ctx context.Context, olderThan time.Duration, now time.Time) ([]*models.PendingOperation, error)

	// MarkAbandoned flags a row for bookkeeping after a manual operator
	// decision. A later confirmation is still honored.
	MarkAbandoned(ctx context.Context, msgID id.MessageID, at time.Time) error
}
