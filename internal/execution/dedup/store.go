// Package dedup records every message the execution domain has already
// processed, together with the confirmation it produced. The relay delivers
// at least once; a redelivery is answered from here instead of executing a
// second time.
package dedup

import (
	"context"
	"time"

	id "vaultbridge/pkg/domain"
)

// DefaultTTL bounds how long a processed message stays remembered. It only
// needs to outlive the relay's redelivery horizon.
const DefaultTTL = 24 * time.Hour

// Store is the delivered-message record.
type Store interface {
	// Lookup returns the confirmation payload recorded for the message,
	// or sentinel.ErrNotFound when the message has never been processed.
	Lookup(ctx context.Context, messageID id.MessageID) ([]byte, error)

	// Record stores the confirmation payload for a processed message.
	// Recording the same message again overwrites, which is harmless
	// because the payload is deterministic for a given execution.
	Record(ctx context.Context, messageID id.MessageID, confirmation []byte) error
}
