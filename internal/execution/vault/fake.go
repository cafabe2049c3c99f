package vault

import (
	"context"
	"sync"

	id "vaultbridge/pkg/domain"
)

// Fake is a scriptable backend for tests. Zero value delegates every call
// to an embedded Static; set the error fields to make calls fail, and
// read the counters to assert how often the venue was hit.
type Fake struct {
	mu sync.Mutex

	DepositErr error
	RedeemErr  error
	ValueErr   error

	DepositCalls int
	RedeemCalls  int
	ValueCalls   int

	static *Static
}

func NewFake() *Fake {
	return &Fake{static: NewStatic()}
}

func (f *Fake) Deposit(ctx context.Context, strategy id.StrategyID, amount int64) (int64, error) {
	f.mu.Lock()
	f.DepositCalls++
	err := f.DepositErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.static.Deposit(ctx, strategy, amount)
}

func (f *Fake) Redeem(ctx context.Context, strategy id.StrategyID, shares int64) (int64, error) {
	f.mu.Lock()
	f.RedeemCalls++
	err := f.RedeemErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.static.Redeem(ctx, strategy, shares)
}

func (f *Fake) ValueOf(ctx context.Context, strategy id.StrategyID, shares int64) (int64, error) {
	f.mu.Lock()
	f.ValueCalls++
	err := f.ValueErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.static.ValueOf(ctx, strategy, shares)
}

// Fail makes every subsequent call return err.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DepositErr, f.RedeemErr, f.ValueErr = err, err, err
}
