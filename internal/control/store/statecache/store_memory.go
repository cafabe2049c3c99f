package statecache

import (
	"context"
	"sync"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// MemoryStore is the in-memory state cache.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[id.AccountID]*models.StateSnapshot
}

func NewMemory() *MemoryStore {
	return &MemoryStore{snaps: make(map[id.AccountID]*models.StateSnapshot)}
}

func (s *MemoryStore) Apply(_ context.Context, snap *models.StateSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, exists := s.snaps[snap.Account]; exists && !snap.SourceTimestamp.After(cur.SourceTimestamp) {
		return false, nil
	}
	cp := *snap
	s.snaps[snap.Account] = &cp
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, account id.AccountID) (*models.StateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.snaps[account]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}
