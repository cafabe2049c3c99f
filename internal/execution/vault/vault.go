// Package vault abstracts the external strategy backend the execution
// domain deposits into and redeems from. Calls are fallible externals:
// handlers must treat every call as something that can revert on its own
// and must only mutate local state after the result is known.
package vault

import (
	"context"

	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
)

// Backend is the strategy venue.
type Backend interface {
	// Deposit puts amount into the strategy and returns the shares minted.
	Deposit(ctx context.Context, strategy id.StrategyID, amount int64) (int64, error)

	// Redeem burns shares and returns the assets released.
	Redeem(ctx context.Context, strategy id.StrategyID, shares int64) (int64, error)

	// ValueOf prices shares in assets without mutating anything.
	ValueOf(ctx context.Context, strategy id.StrategyID, shares int64) (int64, error)
}

// Static is a development backend with a fixed share price per strategy.
// It lets the whole pipeline run end-to-end without real venue
// infrastructure. The default rate is 1 asset per share.
type Static struct {
	rates map[id.StrategyID]int64
}

func NewStatic() *Static {
	return &Static{rates: make(map[id.StrategyID]int64)}
}

// SetRate fixes the assets-per-share price for one strategy. Call before
// serving traffic; Static is not safe for concurrent writes.
func (s *Static) SetRate(strategy id.StrategyID, assetsPerShare int64) {
	s.rates[strategy] = assetsPerShare
}

func (s *Static) rate(strategy id.StrategyID) int64 {
	if r, ok := s.rates[strategy]; ok && r > 0 {
		return r
	}
	return 1
}

func (s *Static) Deposit(_ context.Context, strategy id.StrategyID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "deposit amount must be positive")
	}
	return amount / s.rate(strategy), nil
}

func (s *Static) Redeem(_ context.Context, strategy id.StrategyID, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "redeem shares must be positive")
	}
	return shares * s.rate(strategy), nil
}

func (s *Static) ValueOf(_ context.Context, strategy id.StrategyID, shares int64) (int64, error) {
	return shares * s.rate(strategy), nil
}
