package position

import (
	"context"
	"sort"
	"sync"

	"vaultbridge/internal/execution/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

type positionKey struct {
	account  id.AccountID
	strategy id.StrategyID
}

// MemoryStore is the in-memory position book used for development and
// tests. One mutex guards the whole book, which also gives Execute its
// serialization.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[positionKey]*models.Position
}

func NewMemory() *MemoryStore {
	return &MemoryStore{positions: make(map[positionKey]*models.Position)}
}

func (s *MemoryStore) Get(_ context.Context, account id.AccountID, strategy id.StrategyID) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[positionKey{account, strategy}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *pos
	return &cp, nil
}

func (s *MemoryStore) ListByAccount(_ context.Context, account id.AccountID) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Position
	for key, pos := range s.positions {
		if key.account == account {
			cp := *pos
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Strategy < out[j].Strategy
	})
	return out, nil
}

func (s *MemoryStore) Execute(_ context.Context, account id.AccountID, strategy id.StrategyID, fn func(*models.Position) error) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{account, strategy}
	pos, ok := s.positions[key]
	if !ok {
		pos = &models.Position{Account: account, Strategy: strategy}
	}

	cp := *pos
	if err := fn(&cp); err != nil {
		return nil, err
	}
	s.positions[key] = &cp

	result := cp
	return &result, nil
}
