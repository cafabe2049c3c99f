package audit

import (
	"context"

	id "vaultbridge/pkg/domain"
)

// Store is an append-only event sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account id.AccountID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
