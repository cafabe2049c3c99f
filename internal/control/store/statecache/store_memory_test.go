package statecache

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

func snap(account id.AccountID, ts time.Time, shares int64) *models.StateSnapshot {
	return &models.StateSnapshot{
		Account:         account,
		Shares:          shares,
		Value:           shares * 2,
		SourceTimestamp: ts,
		ReceivedAt:      time.Now(),
	}
}

func TestMemoryStore_RejectsStaleSnapshot(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	account := id.NewAccountID()
	base := time.Unix(0, 0)

	applied, err := store.Apply(ctx, snap(account, base.Add(100*time.Second), 50))
	require.NoError(t, err)
	assert.True(t, applied)

	// Out-of-order delivery of an older snapshot must not overwrite.
	applied, err = store.Apply(ctx, snap(account, base.Add(90*time.Second), 999))
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.Get(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Shares)
	assert.Equal(t, base.Add(100*time.Second), got.SourceTimestamp)
}

func TestMemoryStore_RejectsTimestampTie(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	account := id.NewAccountID()
	ts := time.Unix(100, 0)

	applied, err := store.Apply(ctx, snap(account, ts, 50))
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = store.Apply(ctx, snap(account, ts, 60))
	require.NoError(t, err)
	assert.False(t, applied, "exact ties advance nothing")
}

func TestMemoryStore_ArrivalOrderIrrelevant(t *testing.T) {
	// Property: after applying snapshots in any arrival order, the cached
	// source timestamp is the maximum of all applied timestamps.
	store := NewMemory()
	ctx := context.Background()
	account := id.NewAccountID()
	base := time.Unix(0, 0)

	offsets := []int{5, 3, 9, 1, 7, 2, 8, 4, 6}
	rand.Shuffle(len(offsets), func(i, j int) { offsets[i], offsets[j] = offsets[j], offsets[i] })

	for _, off := range offsets {
		_, err := store.Apply(ctx, snap(account, base.Add(time.Duration(off)*time.Second), int64(off)))
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, base.Add(9*time.Second), got.SourceTimestamp)
	assert.Equal(t, int64(9), got.Shares)
}

func TestMemoryStore_GetUnknownAccount(t *testing.T) {
	store := NewMemory()
	_, err := store.Get(context.Background(), id.NewAccountID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSnapshotFreshness(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		age  time.Duration
		want id.Freshness
	}{
		{"under an hour is fresh", 30 * time.Minute, id.FreshnessFresh},
		{"between one and six hours is stale", 3 * time.Hour, id.FreshnessStale},
		{"beyond six hours is very stale", 7 * time.Hour, id.FreshnessVeryStale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := snap(id.NewAccountID(), now.Add(-tc.age), 1)
			assert.Equal(t, tc.want, s.FreshnessAt(now))
		})
	}
}
