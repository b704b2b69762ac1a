package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wubuku/UniAuth/core"
)

// consumeScript checks and marks a nonce hash in one server-side step.
// KEYS[1] nonce hash, ARGV[1] expected value, ARGV[2] now in unix ms.
var consumeScript = redis.NewScript(`
local value = redis.call('HGET', KEYS[1], 'value')
if not value or value ~= ARGV[1] then
	return 'missing'
end
if redis.call('HEXISTS', KEYS[1], 'consumed_at') == 1 then
	return 'consumed'
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if tonumber(ARGV[2]) >= expires then
	return 'expired'
end
redis.call('HSET', KEYS[1], 'consumed_at', ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

// Save stores the nonce hash, replacing any earlier one for the wallet
func (s *RedisStore) Save(ctx context.Context, nonce core.Nonce) error {
	key := s.key("nonce", nonce.WalletAddress)
	// TTL depends only on the nonce, never on the local clock
	ttl := nonce.ExpiresAt.Sub(nonce.IssuedAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"value":      nonce.Value,
			"wallet":     nonce.WalletAddress,
			"chain_id":   nonce.ChainID,
			"message":    nonce.Message,
			"issued_at":  nonce.IssuedAt.UnixMilli(),
			"expires_at": nonce.ExpiresAt.UnixMilli(),
		})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

// Get returns the nonce stored for a wallet
func (s *RedisStore) Get(ctx context.Context, address string) (core.Nonce, error) {
	fields, err := s.client.HGetAll(ctx, s.key("nonce", address)).Result()
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to read nonce: %w", err)
	}
	if len(fields) == 0 {
		return core.Nonce{}, core.ErrNonceNotFound
	}
	return nonceFromHash(fields)
}

// ConsumeIfValid runs the consume script against the wallet's nonce
func (s *RedisStore) ConsumeIfValid(ctx context.Context, address, value string, now time.Time) (core.Nonce, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key("nonce", address)}, value, now.UnixMilli()).Result()
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to consume nonce: %w", err)
	}

	switch r := res.(type) {
	case string:
		switch r {
		case "missing":
			return core.Nonce{}, core.ErrNonceNotFound
		case "consumed":
			return core.Nonce{}, core.ErrNonceAlreadyConsumed
		case "expired":
			return core.Nonce{}, core.ErrNonceExpired
		}
		return core.Nonce{}, fmt.Errorf("unexpected consume status %q", r)
	case []any:
		fields := make(map[string]string, len(r)/2)
		for i := 0; i+1 < len(r); i += 2 {
			k, _ := r[i].(string)
			v, _ := r[i+1].(string)
			fields[k] = v
		}
		return nonceFromHash(fields)
	}
	return core.Nonce{}, fmt.Errorf("unexpected consume result %T", res)
}

// Invalidate deletes the wallet's nonce
func (s *RedisStore) Invalidate(ctx context.Context, address string) error {
	if err := s.client.Del(ctx, s.key("nonce", address)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate nonce: %w", err)
	}
	return nil
}

func nonceFromHash(fields map[string]string) (core.Nonce, error) {
	n := core.Nonce{
		Value:         fields["value"],
		WalletAddress: fields["wallet"],
		Message:       fields["message"],
	}

	var err error
	if n.ChainID, err = strconv.ParseInt(fields["chain_id"], 10, 64); err != nil {
		return core.Nonce{}, fmt.Errorf("corrupt nonce chain_id: %w", err)
	}
	if n.IssuedAt, err = parseMillis(fields["issued_at"]); err != nil {
		return core.Nonce{}, err
	}
	if n.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return core.Nonce{}, err
	}
	if raw, ok := fields["consumed_at"]; ok {
		at, err := parseMillis(raw)
		if err != nil {
			return core.Nonce{}, err
		}
		n.ConsumedAt = &at
	}
	return n, nil
}

var errCorruptTimestamp = errors.New("corrupt timestamp")

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", errCorruptTimestamp, raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}
