package domain

import "fmt"

// BridgeDomain names one of the two administrative domains joined by the
// relay.
type BridgeDomain string

const (
	// DomainControl initiates operations and caches remote state.
	DomainControl BridgeDomain = "control"
	// DomainExecution holds positions and executes operations.
	DomainExecution BridgeDomain = "execution"
)

// ParseBridgeDomain validates and returns a BridgeDomain.
func ParseBridgeDomain(s string) (BridgeDomain, error) {
	switch d := BridgeDomain(s); d {
	case DomainControl, DomainExecution:
		return d, nil
	default:
		return "", fmt.Errorf("unknown bridge domain: %s", s)
	}
}

// RoleKind classifies privileged roles recognized on both domains.
type RoleKind string

const (
	// RoleOperator may initiate deposits and withdrawals.
	RoleOperator RoleKind = "operator"
	// RoleGuardian may initiate emergency withdrawals.
	RoleGuardian RoleKind = "guardian"
)

// ParseRoleKind validates and returns a RoleKind.
func ParseRoleKind(s string) (RoleKind, error) {
	switch r := RoleKind(s); r {
	case RoleOperator, RoleGuardian:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role kind: %s", s)
	}
}

// OperationKind is the tag of the operation union carried over the relay.
// The dispatcher matches it exhaustively; adding a kind means extending
// the union, the codec, and the dispatcher switch together.
type OperationKind string

const (
	OpDeposit           OperationKind = "deposit"
	OpWithdraw          OperationKind = "withdraw"
	OpEmergencyWithdraw OperationKind = "emergency_withdraw"
	OpBatchStateSync    OperationKind = "batch_state_sync"
)

// ParseOperationKind validates and returns an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	switch k := OperationKind(s); k {
	case OpDeposit, OpWithdraw, OpEmergencyWithdraw, OpBatchStateSync:
		return k, nil
	default:
		return "", fmt.Errorf("unknown operation kind: %s", s)
	}
}

// RequiredRole returns the role an actor must hold to initiate this kind of
// operation on the control domain. ok is false for kinds initiated by
// internal collaborators (batch state sync) rather than external actors.
func (k OperationKind) RequiredRole() (role RoleKind, ok bool) {
	switch k {
	case OpDeposit, OpWithdraw:
		return RoleOperator, true
	case OpEmergencyWithdraw:
		return RoleGuardian, true
	case OpBatchStateSync:
		return "", false
	default:
		return "", false
	}
}

// Priority returns the relay priority class for this kind. High priority is
// reserved for emergency withdrawals.
func (k OperationKind) Priority() Priority {
	if k == OpEmergencyWithdraw {
		return PriorityHigh
	}
	return PriorityStandard
}

// Priority is the relay resource-budget class attached to a message.
type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
)
