package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

func newAccount(label string) *models.Account {
	return &models.Account{
		ID:           id.NewAccountID(),
		Label:        label,
		Active:       true,
		RegisteredAt: time.Now(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	account := newAccount("treasury")

	require.NoError(t, store.Create(ctx, account))

	got, err := store.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "treasury", got.Label)
	assert.True(t, got.Active)
}

func TestMemoryStore_DuplicateCreateConflicts(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	account := newAccount("treasury")

	require.NoError(t, store.Create(ctx, account))
	assert.ErrorIs(t, store.Create(ctx, account), sentinel.ErrConflict)
}

func TestMemoryStore_ListActiveOnly(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	active := newAccount("active")
	inactive := newAccount("inactive")
	require.NoError(t, store.Create(ctx, active))
	require.NoError(t, store.Create(ctx, inactive))

	_, err := store.Execute(ctx, inactive.ID, func(a *models.Account) error {
		a.ApplyDeactivation(time.Now())
		return nil
	})
	require.NoError(t, err)

	all, err := store.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := store.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)
}

func TestMemoryStore_ExecuteRollsBackOnError(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	account := newAccount("treasury")
	require.NoError(t, store.Create(ctx, account))

	_, err := store.Execute(ctx, account.ID, func(a *models.Account) error {
		a.ApplyDeactivation(time.Now())
		if err := a.CanDeactivate(); err != nil {
			return err
		}
		return nil
	})
	require.Error(t, err)

	got, err := store.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "failed mutation leaves the stored account untouched")
}

func TestMemoryStore_DeactivateTwiceRejected(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	account := newAccount("treasury")
	require.NoError(t, store.Create(ctx, account))

	deactivate := func(a *models.Account) error {
		if err := a.CanDeactivate(); err != nil {
			return err
		}
		a.ApplyDeactivation(time.Now())
		return nil
	}

	_, err := store.Execute(ctx, account.ID, deactivate)
	require.NoError(t, err)

	_, err = store.Execute(ctx, account.ID, deactivate)
	assert.Error(t, err)
}

func TestMemoryStore_ExecuteUnknownAccount(t *testing.T) {
	store := NewMemory()
	_, err := store.Execute(context.Background(), id.NewAccountID(), func(*models.Account) error { return nil })
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
