// Package relay defines the boundary to the external message relay joining
// the control and execution domains. The relay is best-effort, asynchronous,
// and at-least-once: messages may arrive minutes late, duplicated, and out of
// order relative to other messages. Everything downstream of this package is
// written to survive that.
package relay

import (
	"context"
	"time"

	id "vaultbridge/pkg/domain"
)

// Envelope is one message in flight. MessageID is assigned by the relay when
// the payload is accepted; it is the correlation key between an operation and
// its confirmation.
type Envelope struct {
	MessageID     id.MessageID
	OriginDomain  id.BridgeDomain
	OriginAddress id.Address
	Destination   id.BridgeDomain
	Priority      id.Priority
	Payload       []byte
	SentAt        time.Time
}

// Client submits payloads to the relay. Send returns once the relay has
// accepted the payload and assigned a message identifier; delivery happens at
// an unspecified later time. Once accepted a message cannot be retracted.
type Client interface {
	Send(ctx context.Context, dest id.BridgeDomain, payload []byte, priority id.Priority) (id.MessageID, error)
}

// Handler processes one delivered envelope. Returning an error tells the
// receiver the delivery was not consumed; the relay will redeliver it, so
// handlers must be idempotent.
type Handler func(ctx context.Context, env Envelope) error

// Receiver pumps deliveries for one domain into a handler until the context
// is cancelled.
type Receiver interface {
	Run(ctx context.Context) error
}
