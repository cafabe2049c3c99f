package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountID identifies an account. The same identifier is understood by both
// the control domain and the execution domain.
type AccountID uuid.UUID

// NewAccountID generates a fresh account identifier.
func NewAccountID() AccountID {
	return AccountID(uuid.New())
}

// ParseAccountID validates and returns an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("parse account id: %w", err)
	}
	return AccountID(u), nil
}

func (a AccountID) String() string {
	return uuid.UUID(a).String()
}

// MarshalText encodes the account ID as its canonical UUID string so JSON
// payloads and map keys stay readable on the wire.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// IsNil returns true if the account ID is the zero value.
func (a AccountID) IsNil() bool {
	return a == AccountID{}
}

// MessageID is the opaque, relay-assigned identifier of a message in flight.
// It is the correlation key between a sent operation and its confirmation.
type MessageID string

func (m MessageID) String() string {
	return string(m)
}

func (m MessageID) IsNil() bool {
	return m == ""
}

// StrategyID identifies a registered strategy on the execution domain.
type StrategyID string

func (s StrategyID) String() string {
	return string(s)
}

func (s StrategyID) IsNil() bool {
	return s == ""
}

// Address identifies an actor (operator, guardian, recipient) on either
// domain. Addresses are opaque strings to this module.
type Address string

func (a Address) String() string {
	return string(a)
}

func (a Address) IsNil() bool {
	return a == ""
}
