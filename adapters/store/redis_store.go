package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wubuku/UniAuth/ports"
)

var (
	_ ports.Store        = (*RedisStore)(nil)
	_ ports.NonceStore   = (*RedisStore)(nil)
	_ ports.BindingStore = (*RedisStore)(nil)
	_ ports.AccountStore = (*RedisStore)(nil)
)

// DefaultNonceRetention is how long a nonce record is kept after it expires,
// so replays shortly after expiry are still reported precisely
const DefaultNonceRetention = 10 * time.Minute

// RedisStore is a Redis implementation of the storage ports
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    "uniauth:",
		retention: DefaultNonceRetention,
	}
}

// WithRetention sets how long nonce records outlive their expiry
func (s *RedisStore) WithRetention(retention time.Duration) *RedisStore {
	if retention > 0 {
		s.retention = retention
	}
	return s
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.key("invalidated", tokenID)

	// Set key with expiration
	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.key("invalidated", tokenID)

	// Check if key exists
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}
