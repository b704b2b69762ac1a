package store

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/wubuku/UniAuth/core"
)

// Save stores the nonce, superseding any earlier nonce for the wallet
func (s *MemoryStore) Save(ctx context.Context, nonce core.Nonce) error {
	n := nonce
	s.nonces.Store(n.WalletAddress, &n)
	return nil
}

// Get returns the nonce stored for a wallet
func (s *MemoryStore) Get(ctx context.Context, address string) (core.Nonce, error) {
	v, ok := s.nonces.Load(address)
	if !ok {
		return core.Nonce{}, core.ErrNonceNotFound
	}
	return *v.(*core.Nonce), nil
}

// ConsumeIfValid marks the wallet's nonce consumed with a compare-and-swap.
// Stored nonces are never mutated in place; a consumed copy replaces the
// original, so the swap succeeds for exactly one caller.
func (s *MemoryStore) ConsumeIfValid(ctx context.Context, address, value string, now time.Time) (core.Nonce, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.Nonce{}, err
		}

		v, ok := s.nonces.Load(address)
		if !ok {
			return core.Nonce{}, core.ErrNonceNotFound
		}
		current := v.(*core.Nonce)

		if err := checkConsumable(*current, value, now); err != nil {
			return core.Nonce{}, err
		}

		consumed := *current
		at := now
		consumed.ConsumedAt = &at

		if s.nonces.CompareAndSwap(address, current, &consumed) {
			return consumed, nil
		}
		// Lost to a concurrent consume or a newer challenge, look again
	}
}

// Invalidate discards the wallet's nonce
func (s *MemoryStore) Invalidate(ctx context.Context, address string) error {
	s.nonces.Delete(address)
	return nil
}

// Sweep removes nonces that expired before the cutoff
func (s *MemoryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	s.nonces.Range(func(key, value any) bool {
		if value.(*core.Nonce).ExpiresAt.Before(cutoff) && s.nonces.CompareAndDelete(key, value) {
			removed++
		}
		return ctx.Err() == nil
	})

	now := time.Now()
	s.invalidatedTokens.Range(func(key, value any) bool {
		if now.After(value.(time.Time)) {
			s.invalidatedTokens.CompareAndDelete(key, value)
		}
		return true
	})

	return removed, ctx.Err()
}

// checkConsumable classifies why a stored nonce cannot be consumed
func checkConsumable(n core.Nonce, value string, now time.Time) error {
	if subtle.ConstantTimeCompare([]byte(n.Value), []byte(value)) != 1 {
		return core.ErrNonceNotFound
	}
	if n.Consumed() {
		return core.ErrNonceAlreadyConsumed
	}
	if n.Expired(now) {
		return core.ErrNonceExpired
	}
	return nil
}
