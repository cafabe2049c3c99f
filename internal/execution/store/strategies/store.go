// Package strategies persists the execution-domain strategy registry.
// Writes are administrative; the dispatcher only reads.
package strategies

import (
	"context"

	"vaultbridge/internal/execution/models"
	id "vaultbridge/pkg/domain"
)

// Store is the strategy registry.
type Store interface {
	// Create inserts a new strategy. A duplicate ID is a conflict.
	Create(ctx context.Context, strategy *models.Strategy) error

	// Get returns one strategy, or sentinel.ErrNotFound.
	Get(ctx context.Context, strategyID id.StrategyID) (*models.Strategy, error)

	// List returns all strategies ordered by registration time.
	List(ctx context.Context) ([]*models.Strategy, error)

	// Execute loads the strategy, runs fn, and persists the result only
	// when fn returns nil.
	Execute(ctx context.Context, strategyID id.StrategyID, fn func(*models.Strategy) error) (*models.Strategy, error)
}
