// Package codec defines the wire format both domains must agree on: the
// operation union sent control→execution and the confirmation sent back.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	id "vaultbridge/pkg/domain"
)

// Operation is the tagged union of the four operation kinds. Only the fields
// relevant to the tagged kind are populated; Validate enforces that.
type Operation struct {
	Kind      id.OperationKind `json:"kind"`
	Account   id.AccountID     `json:"account,omitempty"`
	Strategy  id.StrategyID    `json:"strategy,omitempty"`
	Amount    int64            `json:"amount,omitempty"`
	Shares    int64            `json:"shares,omitempty"`
	Recipient id.Address       `json:"recipient,omitempty"`
	Accounts  []id.AccountID   `json:"accounts,omitempty"`
}

// Validate checks the union invariants for the tagged kind. The switch is
// exhaustive over id.OperationKind; an unknown tag is an error.
func (o Operation) Validate() error {
	switch o.Kind {
	case id.OpDeposit:
		if o.Account.IsNil() || o.Strategy.IsNil() || o.Amount <= 0 {
			return fmt.Errorf("deposit requires account, strategy, and positive amount")
		}
	case id.OpWithdraw:
		if o.Account.IsNil() || o.Recipient.IsNil() || o.Shares <= 0 {
			return fmt.Errorf("withdraw requires account, recipient, and positive shares")
		}
	case id.OpEmergencyWithdraw:
		if o.Account.IsNil() || o.Recipient.IsNil() {
			return fmt.Errorf("emergency withdraw requires account and recipient")
		}
	case id.OpBatchStateSync:
		if len(o.Accounts) == 0 {
			return fmt.Errorf("batch state sync requires at least one account")
		}
	default:
		return fmt.Errorf("unknown operation kind: %q", o.Kind)
	}
	return nil
}

// EncodeOperation serializes a validated operation for the relay.
func EncodeOperation(op Operation) ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, fmt.Errorf("encode operation: %w", err)
	}
	return json.Marshal(op)
}

// DecodeOperation deserializes and validates an operation payload.
func DecodeOperation(payload []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(payload, &op); err != nil {
		return Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	if err := op.Validate(); err != nil {
		return Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	return op, nil
}

// Snapshot is the wire form of an execution-domain state snapshot. The
// source timestamp is set by the execution domain at computation time; the
// control domain sets its own receive time on arrival.
type Snapshot struct {
	Account         id.AccountID  `json:"account"`
	Strategy        id.StrategyID `json:"strategy,omitempty"`
	Shares          int64         `json:"shares"`
	Value           int64         `json:"value"`
	PendingRewards  int64         `json:"pending_rewards"`
	SourceTimestamp time.Time     `json:"source_timestamp"`
}

// Confirmation is the result message sent execution→control. A failed
// handler still produces a confirmation with Success=false so failures are
// observable on the control domain; only provenance rejections are silent.
type Confirmation struct {
	OriginalMessageID id.MessageID     `json:"original_message_id"`
	Kind              id.OperationKind `json:"kind"`
	Account           id.AccountID     `json:"account,omitempty"`
	Success           bool             `json:"success"`
	ErrorCode         string           `json:"error_code,omitempty"`
	Result            string           `json:"result,omitempty"`
	Snapshots         []Snapshot       `json:"snapshots,omitempty"`
}

// EncodeConfirmation serializes a confirmation for the relay.
func EncodeConfirmation(c Confirmation) ([]byte, error) {
	if c.OriginalMessageID.IsNil() {
		return nil, fmt.Errorf("encode confirmation: original message id is required")
	}
	return json.Marshal(c)
}

// DecodeConfirmation deserializes a confirmation payload.
func DecodeConfirmation(payload []byte) (Confirmation, error) {
	var c Confirmation
	if err := json.Unmarshal(payload, &c); err != nil {
		return Confirmation{}, fmt.Errorf("decode confirmation: %w", err)
	}
	if c.OriginalMessageID.IsNil() {
		return Confirmation{}, fmt.Errorf("decode confirmation: original message id is required")
	}
	return c, nil
}
