package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wubuku/UniAuth/core"
)

// GetBinding returns the binding for a wallet
func (s *RedisStore) GetBinding(ctx context.Context, address string) (core.WalletBinding, error) {
	raw, err := s.client.Get(ctx, s.key("binding", address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.WalletBinding{}, core.ErrBindingNotFound
		}
		return core.WalletBinding{}, fmt.Errorf("failed to read binding: %w", err)
	}

	var b core.WalletBinding
	if err := json.Unmarshal(raw, &b); err != nil {
		return core.WalletBinding{}, fmt.Errorf("failed to decode binding: %w", err)
	}
	return b, nil
}

// InsertBinding claims the wallet with SETNX, so only the first writer wins
func (s *RedisStore) InsertBinding(ctx context.Context, binding core.WalletBinding) error {
	payload, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("failed to encode binding: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key("binding", binding.WalletAddress), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert binding: %w", err)
	}
	if !created {
		return core.ErrWalletAlreadyBound
	}

	if err := s.client.SAdd(ctx, s.key("account", binding.AccountID, "wallets"), binding.WalletAddress).Err(); err != nil {
		return fmt.Errorf("failed to index binding: %w", err)
	}
	return nil
}

// ListBindings returns the wallets bound to an account, oldest first
func (s *RedisStore) ListBindings(ctx context.Context, accountID string) ([]core.WalletBinding, error) {
	addresses, err := s.client.SMembers(ctx, s.key("account", accountID, "wallets")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}

	out := make([]core.WalletBinding, 0, len(addresses))
	for _, address := range addresses {
		b, err := s.GetBinding(ctx, address)
		if errors.Is(err, core.ErrBindingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoundAt.Before(out[j].BoundAt) })
	return out, nil
}

// CreateAccount reserves the username with SETNX, then stores the account
func (s *RedisStore) CreateAccount(ctx context.Context, account core.Account) error {
	usernameKey := s.key("username", strings.ToLower(account.Username))

	reserved, err := s.client.SetNX(ctx, usernameKey, account.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve username: %w", err)
	}
	if !reserved {
		return core.ErrUsernameTaken
	}

	if err := s.putAccount(ctx, account); err != nil {
		s.client.Del(ctx, usernameKey)
		return err
	}
	return nil
}

// GetAccount returns an account by id, with the latest recorded login
func (s *RedisStore) GetAccount(ctx context.Context, id string) (core.Account, error) {
	values, err := s.client.MGet(ctx, s.key("account", id), s.key("account", id, "login")).Result()
	if err != nil {
		return core.Account{}, fmt.Errorf("failed to read account: %w", err)
	}

	raw, ok := values[0].(string)
	if !ok {
		return core.Account{}, core.ErrAccountNotFound
	}

	var a core.Account
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return core.Account{}, fmt.Errorf("failed to decode account: %w", err)
	}

	if login, ok := values[1].(string); ok {
		at, err := time.Parse(time.RFC3339Nano, login)
		if err != nil {
			return core.Account{}, fmt.Errorf("failed to decode last login: %w", err)
		}
		a.LastLoginAt = at
	}
	return a, nil
}

// GetAccountByUsername returns an account by case-insensitive username
func (s *RedisStore) GetAccountByUsername(ctx context.Context, username string) (core.Account, error) {
	id, err := s.client.Get(ctx, s.key("username", strings.ToLower(username))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Account{}, core.ErrAccountNotFound
		}
		return core.Account{}, fmt.Errorf("failed to read username: %w", err)
	}
	return s.GetAccount(ctx, id)
}

// EnsureWalletAccount creates the account if missing, otherwise records a login
func (s *RedisStore) EnsureWalletAccount(ctx context.Context, account core.Account) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key("account", account.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if !created {
		return s.TouchLogin(ctx, account.ID, account.LastLoginAt)
	}

	if err := s.client.SetNX(ctx, s.key("username", strings.ToLower(account.Username)), account.ID, 0).Err(); err != nil {
		return fmt.Errorf("failed to index username: %w", err)
	}
	return nil
}

// touchLoginScript writes the login time next to the account record, only
// while the account exists. Concurrent logins never conflict; the last write wins.
var touchLoginScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[1])
return 1
`)

// TouchLogin records the last login time
func (s *RedisStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	keys := []string{s.key("account", id), s.key("account", id, "login")}

	found, err := touchLoginScript.Run(ctx, s.client, keys, at.UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if found == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

func (s *RedisStore) putAccount(ctx context.Context, account core.Account) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	if err := s.client.Set(ctx, s.key("account", account.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}
	return nil
}
