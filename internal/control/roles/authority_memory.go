package roles

import (
	"context"
	"sort"
	"sync"

	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

type roleKey struct {
	account id.AccountID
	role    id.RoleKind
}

// MemoryAuthority is the in-memory role registry used for development
// and tests.
type MemoryAuthority struct {
	mu          sync.RWMutex
	assignments map[roleKey]id.RoleAssignment
}

func NewMemory() *MemoryAuthority {
	return &MemoryAuthority{assignments: make(map[roleKey]id.RoleAssignment)}
}

func (a *MemoryAuthority) Grant(_ context.Context, assignment id.RoleAssignment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.assignments[roleKey{assignment.Account, assignment.Role}] = assignment
	return nil
}

func (a *MemoryAuthority) Revoke(_ context.Context, account id.AccountID, role id.RoleKind) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := roleKey{account, role}
	if _, ok := a.assignments[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(a.assignments, key)
	return nil
}

func (a *MemoryAuthority) HolderOf(_ context.Context, account id.AccountID, role id.RoleKind) (id.Address, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	assignment, ok := a.assignments[roleKey{account, role}]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return assignment.Holder, nil
}

func (a *MemoryAuthority) Snapshot(_ context.Context) ([]id.RoleAssignment, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]id.RoleAssignment, 0, len(a.assignments))
	for _, assignment := range a.assignments {
		out = append(out, assignment)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return out[i].Account.String() < out[j].Account.String()
		}
		return out[i].Role < out[j].Role
	})
	return out, nil
}
