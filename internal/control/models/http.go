package models

import (
	"time"

	id "vaultbridge/pkg/domain"
)

// DepositRequest initiates a deposit into a strategy.
type DepositRequest struct {
	Account  string `json:"account"`
	Strategy string `json:"strategy"`
	Amount   int64  `json:"amount"`
}

// WithdrawRequest initiates a share redemption to a recipient.
type WithdrawRequest struct {
	Account   string `json:"account"`
	Shares    int64  `json:"shares"`
	Recipient string `json:"recipient"`
}

// EmergencyWithdrawRequest initiates a full liquidation to a recipient.
type EmergencyWithdrawRequest struct {
	Account   string `json:"account"`
	Recipient string `json:"recipient"`
}

// RegisterAccountRequest creates a new account.
type RegisterAccountRequest struct {
	Label string `json:"label"`
}

// GrantRoleRequest binds a holder to a role on an account.
type GrantRoleRequest struct {
	Role   string `json:"role"`
	Holder string `json:"holder"`
}

// OperationResponse is the API view of one ledger row.
type OperationResponse struct {
	MessageID string          `json:"messageId"`
	Account   string          `json:"account"`
	Kind      string          `json:"kind"`
	Strategy  string          `json:"strategy,omitempty"`
	Amount    int64           `json:"amount,omitempty"`
	Shares    int64           `json:"shares,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	Priority  string          `json:"priority"`
	Status    OperationStatus `json:"status"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Abandoned bool            `json:"abandoned,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Stale     bool            `json:"stale"`
}

// ToOperationResponse converts a ledger row, classifying staleness at now.
func ToOperationResponse(op *PendingOperation, staleAfter time.Duration, now time.Time) OperationResponse {
	return OperationResponse{
		MessageID: op.MessageID.String(),
		Account:   op.Account.String(),
		Kind:      string(op.Kind),
		Strategy:  op.Strategy.String(),
		Amount:    op.Amount,
		Shares:    op.Shares,
		Recipient: op.Recipient.String(),
		Priority:  string(op.Priority),
		Status:    op.Status(),
		ErrorCode: op.ErrorCode,
		Abandoned: op.Abandoned,
		CreatedAt: op.CreatedAt,
		Stale:     op.IsStale(staleAfter, now),
	}
}

// AccountResponse is the API view of a registry entry.
type AccountResponse struct {
	ID            string     `json:"id"`
	Label         string     `json:"label"`
	Active        bool       `json:"active"`
	RegisteredAt  time.Time  `json:"registeredAt"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

func ToAccountResponse(a *Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID.String(),
		Label:         a.Label,
		Active:        a.Active,
		RegisteredAt:  a.RegisteredAt,
		DeactivatedAt: a.DeactivatedAt,
	}
}

// StateResponse is the cached snapshot with its freshness classification.
type StateResponse struct {
	Account         string       `json:"account"`
	Shares          int64        `json:"shares"`
	Value           int64        `json:"value"`
	PendingRewards  int64        `json:"pendingRewards"`
	SourceTimestamp time.Time    `json:"sourceTimestamp"`
	ReceivedAt      time.Time    `json:"receivedAt"`
	Freshness       id.Freshness `json:"freshness"`
}

func ToStateResponse(s *StateSnapshot, freshness id.Freshness) StateResponse {
	return StateResponse{
		Account:         s.Account.String(),
		Shares:          s.Shares,
		Value:           s.Value,
		PendingRewards:  s.PendingRewards,
		SourceTimestamp: s.SourceTimestamp,
		ReceivedAt:      s.ReceivedAt,
		Freshness:       freshness,
	}
}
