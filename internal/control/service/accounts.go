package service

import (
	"context"
	"errors"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/audit"
	"vaultbridge/pkg/platform/sentinel"
	"vaultbridge/pkg/requestcontext"
)

// RegisterAccount creates a new account in the registry.
func (s *Service) RegisterAccount(ctx context.Context, label string) (*models.Account, error) {
	if label == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "label must not be empty")
	}

	account := &models.Account{
		ID:           id.NewAccountID(),
		Label:        label,
		Active:       true,
		RegisteredAt: requestcontext.Now(ctx),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "register account")
	}

	s.emitAudit(ctx, audit.Event{
		Account: account.ID,
		Actor:   requestcontext.Actor(ctx),
		Action:  string(audit.EventAccountRegistered),
		Detail:  label,
	})
	return account, nil
}

// DeactivateAccount transitions the account to inactive. Existing pending
// operations keep flowing; only new initiations are blocked.
func (s *Service) DeactivateAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	now := requestcontext.Now(ctx)
	account, err := s.accounts.Execute(ctx, accountID, func(a *models.Account) error {
		if err := a.CanDeactivate(); err != nil {
			return err
		}
		a.ApplyDeactivation(now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not registered")
		}
		return nil, err
	}

	s.emitAudit(ctx, audit.Event{
		Account: accountID,
		Actor:   requestcontext.Actor(ctx),
		Action:  string(audit.EventAccountDeactivated),
	})
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load account")
	}
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context, activeOnly bool) ([]*models.Account, error) {
	return s.accounts.List(ctx, activeOnly)
}

// AccountState returns the cached execution-domain snapshot with its
// freshness classification. No snapshot yet is a not-found, not an error in
// the cache.
func (s *Service) AccountState(ctx context.Context, accountID id.AccountID) (*models.StateSnapshot, id.Freshness, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, "", err
	}

	snap, err := s.cache.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", dErrors.New(dErrors.CodeNotFound, "no state snapshot received yet")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "load state snapshot")
	}
	return snap, snap.FreshnessAt(requestcontext.Now(ctx)), nil
}

// Operations lists ledger rows for an account, optionally filtered by
// lifecycle status.
func (s *Service) Operations(ctx context.Context, accountID id.AccountID, status models.OperationStatus, limit int) ([]*models.PendingOperation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.pending.List(ctx, accountID, status, limit)
}

// Operation returns one ledger row by message ID.
func (s *Service) Operation(ctx context.Context, msgID id.MessageID) (*models.PendingOperation, error) {
	op, err := s.pending.Get(ctx, msgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no operation for message id")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load operation")
	}
	return op, nil
}
