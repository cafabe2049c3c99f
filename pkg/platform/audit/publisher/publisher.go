// Package publisher delivers audit events to a store, synchronously by
// default or through a buffered channel when configured.
package publisher

import (
	"context"
	"sync"
	"time"

	id "vaultbridge/pkg/domain"
	audit "vaultbridge/pkg/platform/audit"
)

// Publisher captures structured audit events. In async mode a full buffer
// drops the event rather than blocking the caller: audit must never stall
// an operation path.
type Publisher struct {
	store audit.Store

	inbox chan audit.Event
	done  chan struct{}
	once  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous delivery through
// a channel of the given capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, done: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		_ = p.store.Append(context.Background(), event)
	}
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.CategoryFor(audit.AuditEvent(event.Action))
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		// Buffer full; the event is dropped. Callers treat Emit as
		// best effort in async mode.
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, account id.AccountID) ([]audit.Event, error) {
	return p.store.ListByAccount(ctx, account)
}

// Close stops async delivery after draining buffered events. Safe to call
// more than once.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox == nil {
			close(p.done)
			return
		}
		close(p.inbox)
		<-p.done
	})
}
