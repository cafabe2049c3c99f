package pending

import (
	"context"
	"sort"
	"sync"
	"time"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// MemoryStore is the in-memory ledger used in tests and single-process
// development. One mutex guards the map; mutations on distinct message IDs
// are short enough that finer locking has not been worth it.
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[id.MessageID]*models.PendingOperation
}

func NewMemory() *MemoryStore {
	return &MemoryStore{ops: make(map[id.MessageID]*models.PendingOperation)}
}

func (s *MemoryStore) Record(_ context.Context, op *models.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ops[op.MessageID]; exists {
		return sentinel.ErrConflict
	}
	cp := *op
	s.ops[op.MessageID] = &cp
	return nil
}

func (s *MemoryStore) Confirm(_ context.Context, msgID id.MessageID, success bool, errorCode string, at time.Time) (ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.ops[msgID]
	if !exists {
		return ConfirmResult{}, sentinel.ErrNotFound
	}
	if op.Confirmed {
		cp := *op
		return ConfirmResult{AlreadyConfirmed: true, Op: &cp}, nil
	}

	op.Confirmed = true
	op.ConfirmedAt = &at
	op.Success = success
	op.ErrorCode = errorCode
	cp := *op
	return ConfirmResult{Op: &cp}, nil
}

func (s *MemoryStore) Get(_ context.Context, msgID id.MessageID) (*models.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, exists := s.ops[msgID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, account id.AccountID, status models.OperationStatus, limit int) ([]*models.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PendingOperation
	for _, op := range s.ops {
		if !account.IsNil() && op.Account != account {
			continue
		}
		if status != "" && op.Status() != status {
			continue
		}
		cp := *op
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListStale(_ context.Context, olderThan time.Duration, now time.Time) ([]*models.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PendingOperation
	for _, op := range s.ops {
		if op.Abandoned || !op.IsStale(olderThan, now) {
			continue
		}
		cp := *op
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkAbandoned(_ context.Context, msgID id.MessageID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.ops[msgID]
	if !exists {
		return sentinel.ErrNotFound
	}
	if op.Confirmed {
		return sentinel.ErrInvalidState
	}
	op.Abandoned = true
	op.AbandonedAt = &at
	return nil
}
