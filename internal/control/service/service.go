// Package service orchestrates the control domain: initiating operations
// through the relay, applying confirmations and snapshots as they arrive,
// and sweeping the pending ledger for staleness.
package service

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"vaultbridge/internal/control/metrics"
	"vaultbridge/internal/control/roles"
	"vaultbridge/internal/control/store/accounts"
	"vaultbridge/internal/control/store/pending"
	"vaultbridge/internal/control/store/statecache"
	"vaultbridge/internal/control/ws"
	"vaultbridge/internal/relay"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/audit/publisher"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultStaleAfter  = time.Hour
)

// Service is the control-domain orchestrator. Once a send is accepted by
// the relay the operation is in flight and cannot be retracted; everything
// after that point is driven by the confirmation path.
type Service struct {
	pending  pending.Store
	cache    statecache.Store
	accounts accounts.Store
	roles    roles.Authority
	relay    relay.Client

	logger  *slog.Logger
	audit   *publisher.Publisher
	metrics *metrics.Metrics
	hub     *ws.Hub
	tracer  trace.Tracer

	sendTimeout      time.Duration
	staleAfter       time.Duration
	expectedExecAddr id.Address
}

type Option func(*Service)

// WithAudit attaches an audit publisher. Without one, events are not
// recorded.
func WithAudit(pub *publisher.Publisher) Option {
	return func(s *Service) { s.audit = pub }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStatusHub attaches the websocket hub receiving status transitions.
func WithStatusHub(hub *ws.Hub) Option {
	return func(s *Service) { s.hub = hub }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithSendTimeout bounds the synchronous relay hand-off during initiation.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) { s.sendTimeout = d }
}

// WithStaleAfter sets the pending-operation staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) { s.staleAfter = d }
}

func New(
	pendingStore pending.Store,
	cache statecache.Store,
	accountStore accounts.Store,
	authority roles.Authority,
	relayClient relay.Client,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		pending:     pendingStore,
		cache:       cache,
		accounts:    accountStore,
		roles:       authority,
		relay:       relayClient,
		logger:      logger,
		tracer:      noop.NewTracerProvider().Tracer("control"),
		sendTimeout: defaultSendTimeout,
		staleAfter:  defaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publishStatus(update ws.StatusUpdate) {
	if s.hub != nil {
		s.hub.Publish(update)
	}
}
