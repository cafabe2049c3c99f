package dedup

import (
	"context"
	"sync"
	"time"

	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

type entry struct {
	confirmation []byte
	recordedAt   time.Time
}

// MemoryStore keeps the delivered-message record in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[id.MessageID]entry
	ttl     time.Duration
}

type MemoryOption func(*MemoryStore)

func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[id.MessageID]entry),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Lookup(_ context.Context, messageID id.MessageID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[messageID]
	if !ok || time.Since(e.recordedAt) >= s.ttl {
		return nil, sentinel.ErrNotFound
	}

	out := make([]byte, len(e.confirmation))
	copy(out, e.confirmation)
	return out, nil
}

func (s *MemoryStore) Record(_ context.Context, messageID id.MessageID, confirmation []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(confirmation))
	copy(cp, confirmation)
	s.entries[messageID] = entry{confirmation: cp, recordedAt: time.Now()}
	return nil
}

// Cleanup drops expired entries. Call it periodically to bound memory.
func (s *MemoryStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for messageID, e := range s.entries {
		if now.Sub(e.recordedAt) >= s.ttl {
			delete(s.entries, messageID)
		}
	}
}

// RunCleanup runs Cleanup on the given cadence until ctx is cancelled.
func (s *MemoryStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
