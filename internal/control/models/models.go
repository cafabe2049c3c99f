package models

import (
	"time"

	id "vaultbridge/pkg/domain"
)

// Account is an addressable identity registered by an administrator on the
// control domain. Accounts are never deleted, only deactivated.
type Account struct {
	ID            id.AccountID
	Label         string
	Active        bool
	RegisteredAt  time.Time
	DeactivatedAt *time.Time
}

// CanDeactivate checks the account is in a state that allows deactivation.
func (a *Account) CanDeactivate() error {
	if !a.Active {
		return errAlreadyInactive
	}
	return nil
}

// ApplyDeactivation transitions the account to inactive.
func (a *Account) ApplyDeactivation(now time.Time) {
	a.Active = false
	a.DeactivatedAt = &now
}

// OperationStatus is the control-domain view of an operation's lifecycle:
// Pending → ConfirmedSuccess | ConfirmedFailure. The
// stale marker is orthogonal and attaches to pending operations only; it
// never changes ledger state by itself.
type OperationStatus string

const (
	StatusPending          OperationStatus = "pending"
	StatusConfirmedSuccess OperationStatus = "confirmed_success"
	StatusConfirmedFailure OperationStatus = "confirmed_failure"
)

// PendingOperation is one ledger row keyed by the relay-assigned message ID.
// Rows are append-only: confirmation flips the confirmed flag, abandonment
// flips its own flag, nothing is ever deleted.
type PendingOperation struct {
	MessageID id.MessageID
	Account   id.AccountID
	Kind      id.OperationKind
	Strategy  id.StrategyID
	Amount    int64
	Shares    int64
	Recipient id.Address
	Priority  id.Priority
	CreatedAt time.Time

	Confirmed   bool
	ConfirmedAt *time.Time
	Success     bool
	ErrorCode   string

	// Abandoned is operator bookkeeping only. A confirmation arriving after
	// abandonment is still honored.
	Abandoned   bool
	AbandonedAt *time.Time
}

// Status derives the lifecycle state from the ledger row.
func (p *PendingOperation) Status() OperationStatus {
	switch {
	case !p.Confirmed:
		return StatusPending
	case p.Success:
		return StatusConfirmedSuccess
	default:
		return StatusConfirmedFailure
	}
}

// IsStale reports whether an unconfirmed operation has been pending longer
// than the given threshold. Visibility only; nothing is resent automatically.
func (p *PendingOperation) IsStale(staleAfter time.Duration, now time.Time) bool {
	return !p.Confirmed && now.Sub(p.CreatedAt) > staleAfter
}

// StateSnapshot is the cached last-known execution-domain state for one
// account. SourceTimestamp is stamped by the execution domain when the
// snapshot was computed; ReceivedAt is stamped here on arrival.
type StateSnapshot struct {
	Account         id.AccountID
	Shares          int64
	Value           int64
	PendingRewards  int64
	SourceTimestamp time.Time
	ReceivedAt      time.Time
}

// FreshnessAt classifies the snapshot's age at the given instant.
func (s *StateSnapshot) FreshnessAt(now time.Time) id.Freshness {
	return id.FreshnessOf(now.Sub(s.SourceTimestamp))
}
