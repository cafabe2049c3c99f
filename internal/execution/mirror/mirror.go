// Package mirror holds the execution domain's replica of the control
// domain's role assignments. The mirror is read at execution time for the
// independent authorization re-check; it is replaced wholesale by the
// syncer and is fail-closed when it has never been populated or has aged
// past its trust window.
package mirror

import (
	"context"
	"sync"
	"time"

	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
)

// DefaultMaxAge is how long a synced snapshot stays trusted without a
// refresh.
const DefaultMaxAge = 24 * time.Hour

type roleKey struct {
	account id.AccountID
	role    id.RoleKind
}

// Mirror is the in-memory authorization replica.
type Mirror struct {
	mu          sync.RWMutex
	assignments map[roleKey]id.Address
	asOf        time.Time
	maxAge      time.Duration
}

type Option func(*Mirror)

// WithMaxAge overrides the trust window.
func WithMaxAge(d time.Duration) Option {
	return func(m *Mirror) { m.maxAge = d }
}

func New(opts ...Option) *Mirror {
	m := &Mirror{
		assignments: make(map[roleKey]id.Address),
		maxAge:      DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sync replaces the whole replica with a fresh snapshot.
func (m *Mirror) Sync(assignments []id.RoleAssignment, asOf time.Time) {
	next := make(map[roleKey]id.Address, len(assignments))
	for _, a := range assignments {
		next[roleKey{a.Account, a.Role}] = a.Holder
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = next
	m.asOf = asOf
}

// Check verifies that holder currently holds the role on the account.
// Fail-closed: an unpopulated or expired mirror denies everything, because
// executing a privileged operation on stale authorization data is worse
// than delaying it.
func (m *Mirror) Check(account id.AccountID, role id.RoleKind, holder id.Address, now time.Time) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.asOf.IsZero() {
		return dErrors.New(dErrors.CodeUnavailable, "authorization mirror has never been synced")
	}
	if now.Sub(m.asOf) > m.maxAge {
		return dErrors.New(dErrors.CodeUnavailable, "authorization mirror is too stale to trust")
	}

	current, ok := m.assignments[roleKey{account, role}]
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "no "+string(role)+" assigned for account")
	}
	if current != holder {
		return dErrors.New(dErrors.CodeUnauthorized, "holder does not match the "+string(role)+" assignment")
	}
	return nil
}

// HolderOf returns the current holder of the role on the account. Same
// fail-closed rules as Check.
func (m *Mirror) HolderOf(account id.AccountID, role id.RoleKind, now time.Time) (id.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.asOf.IsZero() {
		return "", dErrors.New(dErrors.CodeUnavailable, "authorization mirror has never been synced")
	}
	if now.Sub(m.asOf) > m.maxAge {
		return "", dErrors.New(dErrors.CodeUnavailable, "authorization mirror is too stale to trust")
	}

	holder, ok := m.assignments[roleKey{account, role}]
	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "no "+string(role)+" assigned for account")
	}
	return holder, nil
}

// AsOf returns the timestamp of the last sync, zero when never synced.
func (m *Mirror) AsOf() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.asOf
}

// RoleSource provides authoritative assignments for sync. In a single
// deployment this is the control domain's role authority; across real
// domains it is a read replica of it.
type RoleSource interface {
	Snapshot(ctx context.Context) ([]id.RoleAssignment, error)
}
