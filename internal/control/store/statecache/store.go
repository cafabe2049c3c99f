// Package statecache caches the last known execution-domain state per
// account. Apply is strictly monotonic on the snapshot's source timestamp:
// out-of-order relay deliveries (including exact timestamp ties) never
// overwrite newer state.
package statecache

import (
	"context"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
)

// Store is the control-domain state cache.
type Store interface {
	// Apply installs the snapshot if its source timestamp is strictly newer
	// than the cached one. Returns false (and no error) when the snapshot
	// is stale or ties the cached timestamp.
	Apply(ctx context.Context, snap *models.StateSnapshot) (applied bool, err error)

	// Get returns the cached snapshot, or sentinel.ErrNotFound if the
	// account has never been synced.
	Get(ctx context.Context, account id.AccountID) (*models.StateSnapshot, error)
}
