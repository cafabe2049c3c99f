package domain

import "time"

// RoleAssignment binds a role on an account to a holder address. It is
// authoritative on the control domain and mirrored, with an as-of timestamp,
// to the execution domain.
type RoleAssignment struct {
	Account   AccountID
	Role      RoleKind
	Holder    Address
	GrantedAt time.Time
}
