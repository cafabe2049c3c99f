package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"vaultbridge/internal/control/models"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// RedisStore keeps the state cache in Redis so it survives process restarts.
// The monotonic compare-and-set runs server side as a Lua script; concurrent
// appliers for the same account cannot interleave.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// applyScript installs the payload only when the incoming source timestamp
// (unix nanos) is strictly greater than the stored one. Ties are rejected.
var applyScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'payload', ARGV[2])
return 1
`)

func cacheKey(account id.AccountID) string {
	return "statecache:" + account.String()
}

func (s *RedisStore) Apply(ctx context.Context, snap *models.StateSnapshot) (bool, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("marshal snapshot: %w", err)
	}

	res, err := applyScript.Run(ctx, s.client,
		[]string{cacheKey(snap.Account)},
		snap.SourceTimestamp.UnixNano(), payload,
	).Int()
	if err != nil {
		return false, fmt.Errorf("apply snapshot: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, account id.AccountID) (*models.StateSnapshot, error) {
	payload, err := s.client.HGet(ctx, cacheKey(account), "payload").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap models.StateSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
