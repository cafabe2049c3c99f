// Package position persists per-(account, strategy) holdings on the
// execution domain.
package position

import (
	"context"

	"vaultbridge/internal/execution/models"
	id "vaultbridge/pkg/domain"
)

// Store holds positions. Execute is the only mutation path: it loads (or
// creates) the position, runs fn, and persists only when fn returns nil.
// Implementations serialize Execute calls for the same (account, strategy).
type Store interface {
	// Get returns one position, or sentinel.ErrNotFound.
	Get(ctx context.Context, account id.AccountID, strategy id.StrategyID) (*models.Position, error)

	// ListByAccount returns every position held by the account.
	ListByAccount(ctx context.Context, account id.AccountID) ([]*models.Position, error)

	// Execute runs fn against the position, creating a zero-share position
	// when none exists yet. The mutation persists only when fn returns nil.
	Execute(ctx context.Context, account id.AccountID, strategy id.StrategyID, fn func(*models.Position) error) (*models.Position, error)
}
