package strategies

import (
	"context"
	"sort"
	"sync"

	"vaultbridge/internal/execution/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// MemoryStore is the in-memory registry used for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	strategies map[id.StrategyID]*models.Strategy
}

func NewMemory() *MemoryStore {
	return &MemoryStore{strategies: make(map[id.StrategyID]*models.Strategy)}
}

func (s *MemoryStore) Create(_ context.Context, strategy *models.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.strategies[strategy.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *strategy
	s.strategies[strategy.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, strategyID id.StrategyID) (*models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strategy, ok := s.strategies[strategyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *strategy
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Strategy, 0, len(s.strategies))
	for _, strategy := range s.strategies {
		cp := *strategy
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}

func (s *MemoryStore) Execute(_ context.Context, strategyID id.StrategyID, fn func(*models.Strategy) error) (*models.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	strategy, ok := s.strategies[strategyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	cp := *strategy
	if err := fn(&cp); err != nil {
		return nil, err
	}
	s.strategies[strategyID] = &cp

	result := cp
	return &result, nil
}
