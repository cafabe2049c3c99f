// Package roles is the authoritative role registry on the control domain.
// Every authorization decision on either domain traces back to this store:
// the control domain reads it directly, the execution domain reads a mirror
// synced from Snapshot.
package roles

import (
	"context"

	id "vaultbridge/pkg/domain"
)

// Authority stores role assignments. At most one holder exists per
// (account, role) pair; a grant replaces the previous holder.
type Authority interface {
	// Grant binds the holder to the role on the account, replacing any
	// existing holder.
	Grant(ctx context.Context, assignment id.RoleAssignment) error

	// Revoke removes the assignment. Revoking a role with no holder
	// returns sentinel.ErrNotFound.
	Revoke(ctx context.Context, account id.AccountID, role id.RoleKind) error

	// HolderOf returns the current holder, or sentinel.ErrNotFound when
	// the role is unassigned.
	HolderOf(ctx context.Context, account id.AccountID, role id.RoleKind) (id.Address, error)

	// Snapshot returns every current assignment. Feeds the execution
	// domain's mirror sync.
	Snapshot(ctx context.Context) ([]id.RoleAssignment, error)
}
