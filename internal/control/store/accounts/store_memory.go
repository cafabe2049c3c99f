package accounts

import (
	"context"
	"sort"
	"sync"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// MemoryStore is the in-memory registry used for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.Account
}

func NewMemory() *MemoryStore {
	return &MemoryStore{accounts: make(map[id.AccountID]*models.Account)}
}

func (s *MemoryStore) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, activeOnly bool) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if activeOnly && !account.Active {
			continue
		}
		cp := *account
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}

func (s *MemoryStore) Execute(_ context.Context, accountID id.AccountID, fn func(*models.Account) error) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	cp := *account
	if err := fn(&cp); err != nil {
		return nil, err
	}
	s.accounts[accountID] = &cp

	result := cp
	return &result, nil
}
