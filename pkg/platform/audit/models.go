// Package audit records administrative and lifecycle events on the control
// domain. Events are append-only: the ledger of who initiated, confirmed,
// abandoned, or re-sent an operation must survive independently of the
// pending-operation table.
package audit

import (
	"time"

	id "vaultbridge/pkg/domain"
)

// EventCategory classifies audit events for routing and retention.
type EventCategory string

const (
	// CategoryValue covers events that move or could move value.
	// Examples: operation initiation, confirmation, resend.
	CategoryValue EventCategory = "value"

	// CategoryAuthorization covers role and account lifecycle changes.
	// Examples: role grants and revocations, account deactivation.
	CategoryAuthorization EventCategory = "authorization"

	// CategoryOperations covers routine bookkeeping with short retention.
	// Examples: abandonment flags, batch sync sweeps.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic. Transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Account   id.AccountID
	Actor     id.Address
	Action    string
	MessageID id.MessageID
	Kind      id.OperationKind
	Detail    string
	RequestID string
}

type AuditEvent string

const (
	EventOperationInitiated AuditEvent = "operation_initiated"
	EventOperationConfirmed AuditEvent = "operation_confirmed"
	EventOperationAbandoned AuditEvent = "operation_abandoned"
	EventOperationResent    AuditEvent = "operation_resent"
	EventBatchSyncStarted   AuditEvent = "batch_sync_started"

	EventAccountRegistered  AuditEvent = "account_registered"
	EventAccountDeactivated AuditEvent = "account_deactivated"
	EventRoleGranted        AuditEvent = "role_granted"
	EventRoleRevoked        AuditEvent = "role_revoked"
)

// CategoryFor maps an event name to its category. Unknown events land in
// operations so nothing is silently dropped.
func CategoryFor(action AuditEvent) EventCategory {
	switch action {
	case EventOperationInitiated, EventOperationConfirmed, EventOperationResent:
		return CategoryValue
	case EventAccountRegistered, EventAccountDeactivated, EventRoleGranted, EventRoleRevoked:
		return CategoryAuthorization
	default:
		return CategoryOperations
	}
}
