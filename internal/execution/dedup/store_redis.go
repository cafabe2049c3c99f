package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// RedisStore keeps the delivered-message record in Redis, so a restarted
// process still recognizes messages a previous instance handled. Expiry is
// delegated to Redis TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dedupKey(messageID id.MessageID) string {
	return "dedup:" + messageID.String()
}

func (s *RedisStore) Lookup(ctx context.Context, messageID id.MessageID) ([]byte, error) {
	payload, err := s.client.Get(ctx, dedupKey(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	return payload, nil
}

func (s *RedisStore) Record(ctx context.Context, messageID id.MessageID, confirmation []byte) error {
	if err := s.client.Set(ctx, dedupKey(messageID), confirmation, s.ttl).Err(); err != nil {
		return fmt.Errorf("dedup record: %w", err)
	}
	return nil
}
