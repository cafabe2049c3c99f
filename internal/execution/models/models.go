// Package models holds the execution-domain state: strategies, per-account
// positions, and the view the vault backend mutates.
package models

import (
	"time"

	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
)

// Strategy is a registered investment venue. Deactivation blocks new
// deposits only; withdrawals from an existing position always work.
type Strategy struct {
	ID            id.StrategyID
	Name          string
	Asset         string
	MinDeposit    int64
	MaxDeposit    int64
	Active        bool
	RegisteredAt  time.Time
	DeactivatedAt *time.Time
}

// CanDeposit checks the strategy accepts new funds of this size. A zero
// MaxDeposit means unbounded.
func (s *Strategy) CanDeposit(amount int64) error {
	if !s.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "strategy is deactivated")
	}
	if amount < s.MinDeposit {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"deposit of %d is below the strategy minimum %d", amount, s.MinDeposit)
	}
	if s.MaxDeposit > 0 && amount > s.MaxDeposit {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"deposit of %d exceeds the strategy maximum %d", amount, s.MaxDeposit)
	}
	return nil
}

// ApplyDeactivation transitions the strategy to inactive.
func (s *Strategy) ApplyDeactivation(now time.Time) {
	s.Active = false
	s.DeactivatedAt = &now
}

// Position is one account's holding in one strategy. Shares are
// fixed-point integers and can never go negative.
type Position struct {
	Account        id.AccountID
	Strategy       id.StrategyID
	Shares         int64
	DepositedValue int64
	UpdatedAt      time.Time
}

// CanRedeem checks the position covers the requested shares.
func (p *Position) CanRedeem(shares int64) error {
	if shares <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "shares must be positive")
	}
	if shares > p.Shares {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"withdrawal of %d shares exceeds held %d", shares, p.Shares)
	}
	return nil
}

// ApplyDeposit credits newly minted shares and tracks the cumulative
// value put in. DepositedValue only ever grows; redemptions do not
// claw it back.
func (p *Position) ApplyDeposit(shares, amount int64, now time.Time) {
	p.Shares += shares
	p.DepositedValue += amount
	p.UpdatedAt = now
}

// ApplyRedeem debits shares. Callers must run CanRedeem first.
func (p *Position) ApplyRedeem(shares int64, now time.Time) {
	p.Shares -= shares
	p.UpdatedAt = now
}
