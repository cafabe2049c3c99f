// Package dispatcher receives relay deliveries on the execution domain,
// executes the requested operation exactly once per message, and emits a
// confirmation back to the control domain. A failed operation still
// produces a confirmation; only a provenance rejection stays silent.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"vaultbridge/internal/execution/dedup"
	"vaultbridge/internal/execution/metrics"
	"vaultbridge/internal/execution/mirror"
	"vaultbridge/internal/execution/store/position"
	"vaultbridge/internal/execution/store/strategies"
	"vaultbridge/internal/execution/vault"
	"vaultbridge/internal/relay"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/circuit"
)

// Dispatcher is the execution-domain message entry point.
type Dispatcher struct {
	strategies strategies.Store
	positions  position.Store
	mirror     *mirror.Mirror
	delivered  dedup.Store
	backend    vault.Backend
	breaker    *circuit.Breaker
	client     relay.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	// expectedOrigin is the single trusted control-domain sender. Empty
	// disables the address half of the provenance check for in-process
	// development setups; the domain half always applies.
	expectedOrigin id.Address

	locks    accountLocks
	inflight messageLocks
}

type Option func(*Dispatcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

func WithExpectedOrigin(addr id.Address) Option {
	return func(d *Dispatcher) { d.expectedOrigin = addr }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(d *Dispatcher) { d.breaker = b }
}

func New(
	strategyStore strategies.Store,
	positionStore position.Store,
	authMirror *mirror.Mirror,
	delivered dedup.Store,
	backend vault.Backend,
	client relay.Client,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		strategies: strategyStore,
		positions:  positionStore,
		mirror:     authMirror,
		delivered:  delivered,
		backend:    backend,
		breaker:    circuit.New("vault-backend", circuit.WithFailureThreshold(5)),
		client:     client,
		logger:     logger,
		tracer:     noop.NewTracerProvider().Tracer("execution"),
		locks:      accountLocks{locks: make(map[id.AccountID]*sync.Mutex)},
		inflight:   messageLocks{locks: make(map[id.MessageID]*messageLock)},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// accountLocks serializes position mutations per account. Distinct
// accounts proceed in parallel.
type accountLocks struct {
	mu    sync.Mutex
	locks map[id.AccountID]*sync.Mutex
}

func (l *accountLocks) forAccount(account id.AccountID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[account]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[account] = lock
	}
	return lock
}

func (d *Dispatcher) withAccountLock(account id.AccountID, fn func() error) error {
	lock := d.locks.forAccount(account)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// messageLocks serializes concurrent deliveries of the same message ID so
// the dedup lookup, the handler, and the dedup record form one critical
// section. Entries are reference counted and dropped once no delivery
// holds them; message IDs are unbounded and must not accumulate.
type messageLocks struct {
	mu    sync.Mutex
	locks map[id.MessageID]*messageLock
}

type messageLock struct {
	mu   sync.Mutex
	refs int
}

func (l *messageLocks) acquire(msg id.MessageID) *messageLock {
	l.mu.Lock()
	lock, ok := l.locks[msg]
	if !ok {
		lock = &messageLock{}
		l.locks[msg] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (l *messageLocks) release(msg id.MessageID, lock *messageLock) {
	lock.mu.Unlock()

	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, msg)
	}
	l.mu.Unlock()
}

// callBackend wraps a vault call with the circuit breaker. While the
// circuit is open no call reaches the venue at all.
func (d *Dispatcher) callBackend(ctx context.Context, call string, fn func(context.Context) (int64, error)) (int64, error) {
	if d.breaker.IsOpen() {
		return 0, dErrors.New(dErrors.CodeUnavailable, "vault backend circuit is open")
	}

	start := time.Now()
	result, err := fn(ctx)
	d.metrics.ObserveVaultCall(call, time.Since(start))

	if err != nil {
		if _, change := d.breaker.RecordFailure(); change.Opened {
			d.logger.Error("vault backend circuit opened", "call", call, "error", err)
		}
		return 0, err
	}
	if _, change := d.breaker.RecordSuccess(); change.Closed {
		d.logger.Info("vault backend circuit closed", "call", call)
	}
	return result, nil
}
