// Package accounts persists the control-domain account registry. Accounts
// are registered by administrators, addressed by UUID, and deactivated
// rather than deleted so historical operations always resolve.
package accounts

import (
	"context"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
)

// Store is the account registry.
type Store interface {
	// Create inserts a new account. A duplicate ID is a conflict.
	Create(ctx context.Context, account *models.Account) error

	// Get returns one account, or sentinel.ErrNotFound.
	Get(ctx context.Context, accountID id.AccountID) (*models.Account, error)

	// List returns accounts, optionally restricted to active ones,
	// ordered by registration time.
	List(ctx context.Context, activeOnly bool) ([]*models.Account, error)

	// Execute loads the account, runs fn against it, and persists the
	// result only when fn returns nil. The load-mutate-store sequence is
	// atomic with respect to other Execute calls for the same account.
	Execute(ctx context.Context, accountID id.AccountID, fn func(*models.Account) error) (*models.Account, error)
}
