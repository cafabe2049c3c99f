package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

func TestMemoryStoreRecordAndLookup(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "msg-1", []byte(`{"success":true}`)))

	payload, err := store.Lookup(ctx, "msg-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(payload))
}

func TestMemoryStoreLookupUnknown(t *testing.T) {
	store := NewMemory()

	_, err := store.Lookup(context.Background(), "never-seen")

	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemory(WithTTL(10 * time.Millisecond))
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, "msg-1", []byte("x")))

	time.Sleep(20 * time.Millisecond)

	_, err := store.Lookup(ctx, "msg-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreCleanupDropsExpired(t *testing.T) {
	store := NewMemory(WithTTL(10 * time.Millisecond))
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, "old", []byte("x")))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.Record(ctx, "fresh", []byte("y")))

	store.Cleanup()

	assert.Len(t, store.entries, 1)
	_, err := store.Lookup(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryStoreRecordOverwrites(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	messageID := id.MessageID("msg-1")

	require.NoError(t, store.Record(ctx, messageID, []byte("first")))
	require.NoError(t, store.Record(ctx, messageID, []byte("second")))

	payload, err := store.Lookup(ctx, messageID)
	require.NoError(t, err)
	assert.Equal(t, "second", string(payload))
}
