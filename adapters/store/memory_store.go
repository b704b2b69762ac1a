package store

import (
	"context"
	"sync"
	"time"

	"github.com/wubuku/UniAuth/ports"
)

var (
	_ ports.Store        = (*MemoryStore)(nil)
	_ ports.NonceStore   = (*MemoryStore)(nil)
	_ ports.BindingStore = (*MemoryStore)(nil)
	_ ports.AccountStore = (*MemoryStore)(nil)
	_ ports.Sweeper      = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory implementation of the storage ports.
// Every mutation is a single atomic operation on a sync.Map keyed by wallet,
// token or account, so unrelated keys never wait on each other.
type MemoryStore struct {
	invalidatedTokens sync.Map // token id -> time.Time
	nonces            sync.Map // wallet address -> *core.Nonce
	bindings          sync.Map // wallet address -> *core.WalletBinding
	accounts          sync.Map // account id -> *core.Account
	usernames         sync.Map // lowercase username -> account id
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.invalidatedTokens.Store(tokenID, time.Now().Add(expiry))
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	v, ok := s.invalidatedTokens.Load(tokenID)
	if !ok {
		return false, nil
	}

	// The invalidation record outlives the token; past that point it is moot
	expiryTime := v.(time.Time)
	if time.Now().After(expiryTime) {
		s.invalidatedTokens.CompareAndDelete(tokenID, v)
		return false, nil
	}

	return true, nil
}
