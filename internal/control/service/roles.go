package service

import (
	"context"
	"errors"

	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/audit"
	"vaultbridge/pkg/platform/sentinel"
	"vaultbridge/pkg/requestcontext"
)

// GrantRole binds a holder to a role on an account, replacing any previous
// holder. The grant takes effect immediately on the control domain; the
// execution domain sees it after its next mirror sync.
func (s *Service) GrantRole(ctx context.Context, accountID id.AccountID, role id.RoleKind, holder id.Address) error {
	if holder.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "holder address must not be empty")
	}
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return err
	}

	assignment := id.RoleAssignment{
		Account:   accountID,
		Role:      role,
		Holder:    holder,
		GrantedAt: requestcontext.Now(ctx),
	}
	if err := s.roles.Grant(ctx, assignment); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "grant role")
	}

	s.emitAudit(ctx, audit.Event{
		Account: accountID,
		Actor:   requestcontext.Actor(ctx),
		Action:  string(audit.EventRoleGranted),
		Detail:  string(role) + "=" + holder.String(),
	})
	return nil
}

// RevokeRole removes the assignment. Operations already in flight on the
// relay are unaffected here; the execution domain re-verifies against its
// own mirror at execution time.
func (s *Service) RevokeRole(ctx context.Context, accountID id.AccountID, role id.RoleKind) error {
	if err := s.roles.Revoke(ctx, accountID, role); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "role is not assigned")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke role")
	}

	s.emitAudit(ctx, audit.Event{
		Account: accountID,
		Actor:   requestcontext.Actor(ctx),
		Action:  string(audit.EventRoleRevoked),
		Detail:  string(role),
	})
	return nil
}

// RoleHolder resolves the current holder of a role on an account.
func (s *Service) RoleHolder(ctx context.Context, accountID id.AccountID, role id.RoleKind) (id.Address, error) {
	holder, err := s.roles.HolderOf(ctx, accountID, role)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "role is not assigned")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "resolve role holder")
	}
	return holder, nil
}
