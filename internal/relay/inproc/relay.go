// Package inproc is an in-process relay used by tests and single-binary
// development. It preserves the external relay's contract: asynchronous
// delivery, no ordering guarantee, and at-least-once semantics (tests can
// force duplicate deliveries).
package inproc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vaultbridge/internal/relay"
	id "vaultbridge/pkg/domain"
)

const maxAttempts = 5

// Relay routes envelopes between in-process subscribers.
type Relay struct {
	logger *slog.Logger
	delay  time.Duration

	mu   sync.RWMutex
	subs map[id.BridgeDomain]relay.Handler

	wg sync.WaitGroup
}

// Option configures the relay.
type Option func(*Relay)

// WithDelay delays every delivery, approximating relay latency.
func WithDelay(d time.Duration) Option {
	return func(r *Relay) { r.delay = d }
}

func New(logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		logger: logger,
		subs:   make(map[id.BridgeDomain]relay.Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers the handler receiving deliveries for a domain.
func (r *Relay) Subscribe(domain id.BridgeDomain, h relay.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[domain] = h
}

// Client returns a relay client bound to an origin identity.
func (r *Relay) Client(origin id.BridgeDomain, address id.Address) relay.Client {
	return &client{relay: r, origin: origin, address: address}
}

// Wait blocks until all in-flight deliveries have settled. Test helper.
func (r *Relay) Wait() {
	r.wg.Wait()
}

// Redeliver injects a duplicate of an already-delivered envelope, simulating
// the relay's at-least-once behavior. Test helper.
func (r *Relay) Redeliver(env relay.Envelope) {
	r.dispatch(env)
}

func (r *Relay) dispatch(env relay.Envelope) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.delay > 0 {
			time.Sleep(r.delay)
		}

		r.mu.RLock()
		h, ok := r.subs[env.Destination]
		r.mu.RUnlock()
		if !ok {
			r.logger.Warn("no subscriber for destination, dropping",
				"destination", string(env.Destination),
				"message_id", env.MessageID.String(),
			)
			return
		}

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err := h(context.Background(), env); err == nil {
				return
			} else if attempt == maxAttempts {
				r.logger.Error("delivery abandoned after retries",
					"message_id", env.MessageID.String(),
					"error", err,
				)
				return
			}
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
		}
	}()
}

type client struct {
	relay   *Relay
	origin  id.BridgeDomain
	address id.Address
}

func (c *client) Send(ctx context.Context, dest id.BridgeDomain, payload []byte, priority id.Priority) (id.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	env := relay.Envelope{
		MessageID:     id.MessageID(uuid.NewString()),
		OriginDomain:  c.origin,
		OriginAddress: c.address,
		Destination:   dest,
		Priority:      priority,
		Payload:       payload,
		SentAt:        time.Now(),
	}
	c.relay.dispatch(env)
	return env.MessageID, nil
}
