package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultbridge/internal/execution/dedup"
	"vaultbridge/internal/execution/mirror"
	"vaultbridge/internal/execution/models"
	"vaultbridge/internal/execution/store/position"
	"vaultbridge/internal/execution/store/strategies"
	"vaultbridge/internal/execution/vault"
	"vaultbridge/internal/relay"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/circuit"
)

const controlAddr = id.Address("0xcontrol")

// captureClient records every confirmation the dispatcher emits.
type captureClient struct {
	mu   sync.Mutex
	sent []relay.Envelope
	seq  int
}

func (c *captureClient) Send(_ context.Context, dest id.BridgeDomain, payload []byte, priority id.Priority) (id.MessageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	env := relay.Envelope{
		MessageID:   id.MessageID("conf-" + strconv.Itoa(c.seq)),
		Destination: dest,
		Priority:    priority,
		Payload:     payload,
	}
	c.sent = append(c.sent, env)
	return env.MessageID, nil
}

func (c *captureClient) confirmations(t *testing.T) []codec.Confirmation {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]codec.Confirmation, 0, len(c.sent))
	for _, env := range c.sent {
		conf, err := codec.DecodeConfirmation(env.Payload)
		require.NoError(t, err)
		out = append(out, conf)
	}
	return out
}

type fixture struct {
	dispatcher *Dispatcher
	strategies *strategies.MemoryStore
	positions  *position.MemoryStore
	mirror     *mirror.Mirror
	backend    *vault.Fake
	client     *captureClient
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		strategies: strategies.NewMemory(),
		positions:  position.NewMemory(),
		mirror:     mirror.New(),
		backend:    vault.NewFake(),
		client:     &captureClient{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithExpectedOrigin(controlAddr)}, opts...)
	f.dispatcher = New(
		f.strategies, f.positions, f.mirror, dedup.NewMemory(),
		f.backend, f.client, logger, opts...,
	)
	return f
}

func (f *fixture) registerStrategy(t *testing.T, strategyID string) {
	t.Helper()
	require.NoError(t, f.strategies.Create(context.Background(), &models.Strategy{
		ID:           id.StrategyID(strategyID),
		Name:         "Strategy " + strategyID,
		Active:       true,
		RegisteredAt: time.Now().UTC(),
	}))
}

func (f *fixture) seedPosition(t *testing.T, account id.AccountID, strategyID string, shares int64) {
	t.Helper()
	_, err := f.positions.Execute(context.Background(), account, id.StrategyID(strategyID), func(p *models.Position) error {
		p.ApplyDeposit(shares, shares, time.Now().UTC())
		return nil
	})
	require.NoError(t, err)
}

func envelope(t *testing.T, messageID string, op codec.Operation) relay.Envelope {
	t.Helper()
	payload, err := codec.EncodeOperation(op)
	require.NoError(t, err)
	return relay.Envelope{
		MessageID:     id.MessageID(messageID),
		OriginDomain:  id.DomainControl,
		OriginAddress: controlAddr,
		Destination:   id.DomainExecution,
		Priority:      op.Kind.Priority(),
		Payload:       payload,
		SentAt:        time.Now().UTC(),
	}
}

func TestDepositExecutesAndConfirms(t *testing.T) {
	f := newFixture(t)
	f.registerStrategy(t, "yield-a")
	account := id.NewAccountID()

	err := f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpDeposit, Account: account, Strategy: "yield-a", Amount: 500,
	}))
	require.NoError(t, err)

	pos, err := f.positions.Get(context.Background(), account, "yield-a")
	require.NoError(t, err)
	assert.Equal(t, int64(500), pos.Shares)
	assert.Equal(t, int64(500), pos.DepositedValue)

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.Equal(t, id.MessageID("msg-1"), confs[0].OriginalMessageID)
	assert.True(t, confs[0].Success)
	require.Len(t, confs[0].Snapshots, 1)
	assert.Equal(t, int64(500), confs[0].Snapshots[0].Shares)
	assert.False(t, confs[0].Snapshots[0].SourceTimestamp.IsZero())
}

func TestDuplicateDeliveryExecutesOnce(t *testing.T) {
	f := newFixture(t)
	f.registerStrategy(t, "yield-a")
	account := id.NewAccountID()
	env := envelope(t, "msg-1", codec.Operation{
		Kind: id.OpDeposit, Account: account, Strategy: "yield-a", Amount: 500,
	})

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), env))
	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), env))

	pos, err := f.positions.Get(context.Background(), account, "yield-a")
	require.NoError(t, err)
	assert.Equal(t, int64(500), pos.Shares, "second delivery must not deposit again")
	assert.Equal(t, 1, f.backend.DepositCalls)

	// Both deliveries were answered, with the identical confirmation.
	confs := f.client.confirmations(t)
	require.Len(t, confs, 2)
	assert.Equal(t, confs[0], confs[1])
}

// slowBackend holds every deposit long enough for a concurrent delivery of
// the same message to reach the dedup lookup.
type slowBackend struct {
	*vault.Fake
	delay time.Duration
}

func (b *slowBackend) Deposit(ctx context.Context, strategy id.StrategyID, amount int64) (int64, error) {
	time.Sleep(b.delay)
	return b.Fake.Deposit(ctx, strategy, amount)
}

func TestConcurrentDuplicateDeliveriesExecuteOnce(t *testing.T) {
	f := newFixture(t)
	f.registerStrategy(t, "yield-a")
	account := id.NewAccountID()
	f.dispatcher.backend = &slowBackend{Fake: f.backend, delay: 50 * time.Millisecond}

	env := envelope(t, "msg-1", codec.Operation{
		Kind: id.OpDeposit, Account: account, Strategy: "yield-a", Amount: 100,
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.dispatcher.OnDelivery(context.Background(), env)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	pos, err := f.positions.Get(context.Background(), account, "yield-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.Shares, "concurrent duplicates must deposit once")
	assert.Equal(t, 1, f.backend.DepositCalls)

	confs := f.client.confirmations(t)
	require.Len(t, confs, 2)
	assert.Equal(t, confs[0], confs[1])
}

func TestUntrustedOriginDroppedSilently(t *testing.T) {
	f := newFixture(t)
	f.registerStrategy(t, "yield-a")
	account := id.NewAccountID()

	env := envelope(t, "msg-1", codec.Operation{
		Kind: id.OpDeposit, Account: account, Strategy: "yield-a", Amount: 500,
	})
	env.OriginAddress = "0xforged"

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), env))

	assert.Empty(t, f.client.sent, "a forged message must not be acknowledged")
	assert.Zero(t, f.backend.DepositCalls)

	env = envelope(t, "msg-2", codec.Operation{
		Kind: id.OpDeposit, Account: account, Strategy: "yield-a", Amount: 500,
	})
	env.OriginDomain = id.DomainExecution

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), env))
	assert.Empty(t, f.client.sent)
}

func TestDepositToUnknownStrategyFails(t *testing.T) {
	f := newFixture(t)
	account := id.NewAccountID()

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpDeposit, Account: account, Strategy: "ghost", Amount: 500,
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.False(t, confs[0].Success)
	assert.Equal(t, string(dErrors.CodeNotFound), confs[0].ErrorCode)
	assert.Zero(t, f.backend.DepositCalls)
}

func TestDepositToDeactivatedStrategyFails(t *testing.T) {
	f := newFixture(t)
	f.registerStrategy(t, "yield-a")
	_, err := f.strategies.Execute(context.Background(), "yield-a", func(s *models.Strategy) error {
		s.ApplyDeactivation(time.Now().UTC())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpDeposit, Account: id.NewAccountID(), Strategy: "yield-a", Amount: 500,
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.False(t, confs[0].Success)
	assert.Equal(t, string(dErrors.CodeInvariantViolation), confs[0].ErrorCode)
	assert.Zero(t, f.backend.DepositCalls)
}

func TestWithdrawOverdrawFailsWithoutVenueCall(t *testing.T) {
	f := newFixture(t)
	account := id.NewAccountID()
	f.seedPosition(t, account, "yield-a", 100)

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpWithdraw, Account: account, Shares: 250, Recipient: "0xdest",
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.False(t, confs[0].Success)
	assert.Equal(t, string(dErrors.CodeInvariantViolation), confs[0].ErrorCode)
	assert.Zero(t, f.backend.RedeemCalls)

	pos, err := f.positions.Get(context.Background(), account, "yield-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.Shares)
}

func TestWithdrawRedeemsAcrossStrategies(t *testing.T) {
	f := newFixture(t)
	account := id.NewAccountID()
	f.seedPosition(t, account, "yield-a", 100)
	f.seedPosition(t, account, "yield-b", 100)

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpWithdraw, Account: account, Shares: 150, Recipient: "0xdest",
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.True(t, confs[0].Success)

	var remaining int64
	positions, err := f.positions.ListByAccount(context.Background(), account)
	require.NoError(t, err)
	for _, pos := range positions {
		remaining += pos.Shares
	}
	assert.Equal(t, int64(50), remaining)
}

func TestEmergencyWithdrawLiquidatesEverything(t *testing.T) {
	f := newFixture(t)
	account := id.NewAccountID()
	f.seedPosition(t, account, "yield-a", 100)
	f.seedPosition(t, account, "yield-b", 250)
	f.mirror.Sync([]id.RoleAssignment{
		{Account: account, Role: id.RoleGuardian, Holder: "0xguardian"},
	}, time.Now().UTC())

	env := envelope(t, "msg-1", codec.Operation{
		Kind: id.OpEmergencyWithdraw, Account: account, Recipient: "0xsafe",
	})
	require.Equal(t, id.PriorityHigh, env.Priority)
	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), env))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.True(t, confs[0].Success)

	positions, err := f.positions.ListByAccount(context.Background(), account)
	require.NoError(t, err)
	for _, pos := range positions {
		assert.Zero(t, pos.Shares)
	}
}

func TestEmergencyWithdrawFailsClosedWithoutGuardian(t *testing.T) {
	f := newFixture(t)
	account := id.NewAccountID()
	f.seedPosition(t, account, "yield-a", 100)

	// Mirror is synced but holds no Guardian for this account.
	f.mirror.Sync(nil, time.Now().UTC())

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpEmergencyWithdraw, Account: account, Recipient: "0xsafe",
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.False(t, confs[0].Success)
	assert.Equal(t, string(dErrors.CodeUnauthorized), confs[0].ErrorCode)
	assert.Zero(t, f.backend.RedeemCalls)

	pos, err := f.positions.Get(context.Background(), account, "yield-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.Shares)
}

func TestEmergencyWithdrawFailsClosedOnUnsyncedMirror(t *testing.T) {
	f := newFixture(t)
	account := id.NewAccountID()
	f.seedPosition(t, account, "yield-a", 100)

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpEmergencyWithdraw, Account: account, Recipient: "0xsafe",
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.False(t, confs[0].Success)
	assert.Equal(t, string(dErrors.CodeUnavailable), confs[0].ErrorCode)
	assert.Zero(t, f.backend.RedeemCalls)
}

// failingValueBackend prices one strategy with an error so batch sync can
// be tested for per-account isolation.
type failingValueBackend struct {
	*vault.Fake
	bad id.StrategyID
}

func (b *failingValueBackend) ValueOf(ctx context.Context, strategy id.StrategyID, shares int64) (int64, error) {
	if strategy == b.bad {
		return 0, dErrors.New(dErrors.CodeUnavailable, "venue pricing offline")
	}
	return b.Fake.ValueOf(ctx, strategy, shares)
}

func TestBatchStateSyncIsolatesAccountFailures(t *testing.T) {
	f := newFixture(t)
	healthy := id.NewAccountID()
	broken := id.NewAccountID()
	f.seedPosition(t, healthy, "yield-a", 100)
	f.seedPosition(t, broken, "yield-bad", 100)
	f.dispatcher.backend = &failingValueBackend{Fake: f.backend, bad: "yield-bad"}

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpBatchStateSync, Accounts: []id.AccountID{healthy, broken},
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.True(t, confs[0].Success)
	require.Len(t, confs[0].Snapshots, 1)
	assert.Equal(t, healthy, confs[0].Snapshots[0].Account)
	assert.Contains(t, confs[0].Result, "1 failed")
}

func TestBatchStateSyncSkipsAccountsWithoutPositions(t *testing.T) {
	f := newFixture(t)
	funded := id.NewAccountID()
	empty := id.NewAccountID()
	f.seedPosition(t, funded, "yield-a", 100)

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpBatchStateSync, Accounts: []id.AccountID{funded, empty},
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.True(t, confs[0].Success)
	require.Len(t, confs[0].Snapshots, 1, "position-less account gets no snapshot")
	assert.Equal(t, funded, confs[0].Snapshots[0].Account)
}

func TestVaultFailureConfirmsFailure(t *testing.T) {
	f := newFixture(t)
	f.registerStrategy(t, "yield-a")
	account := id.NewAccountID()
	f.backend.DepositErr = dErrors.New(dErrors.CodeUnavailable, "venue reverted")

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, "msg-1", codec.Operation{
		Kind: id.OpDeposit, Account: account, Strategy: "yield-a", Amount: 500,
	})))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.False(t, confs[0].Success)
	assert.Equal(t, string(dErrors.CodeUnavailable), confs[0].ErrorCode)

	_, err := f.positions.Get(context.Background(), account, "yield-a")
	assert.Error(t, err, "no position row after a failed deposit")
}

func TestCircuitBreakerShortCircuitsVenue(t *testing.T) {
	f := newFixture(t, WithBreaker(circuit.New("vault-backend", circuit.WithFailureThreshold(2))))
	f.registerStrategy(t, "yield-a")
	account := id.NewAccountID()
	f.backend.DepositErr = dErrors.New(dErrors.CodeUnavailable, "venue reverted")

	for i, messageID := range []string{"msg-1", "msg-2", "msg-3"} {
		require.NoError(t, f.dispatcher.OnDelivery(context.Background(), envelope(t, messageID, codec.Operation{
			Kind: id.OpDeposit, Account: account, Strategy: "yield-a", Amount: 500,
		})), "delivery %d", i)
	}

	// Two failures opened the circuit; the third delivery never reached
	// the venue.
	assert.Equal(t, 2, f.backend.DepositCalls)

	confs := f.client.confirmations(t)
	require.Len(t, confs, 3)
	for _, conf := range confs {
		assert.False(t, conf.Success)
	}
}

func TestMalformedPayloadConfirmsFailure(t *testing.T) {
	f := newFixture(t)

	env := relay.Envelope{
		MessageID:     "msg-1",
		OriginDomain:  id.DomainControl,
		OriginAddress: controlAddr,
		Destination:   id.DomainExecution,
		Priority:      id.PriorityStandard,
		Payload:       []byte("not an operation"),
		SentAt:        time.Now().UTC(),
	}

	require.NoError(t, f.dispatcher.OnDelivery(context.Background(), env))

	confs := f.client.confirmations(t)
	require.Len(t, confs, 1)
	assert.False(t, confs[0].Success)
	assert.Equal(t, string(dErrors.CodeBadRequest), confs[0].ErrorCode)
}
