package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/wubuku/UniAuth/core"
)

// GetBinding returns the binding for a wallet
func (s *MemoryStore) GetBinding(ctx context.Context, address string) (core.WalletBinding, error) {
	v, ok := s.bindings.Load(address)
	if !ok {
		return core.WalletBinding{}, core.ErrBindingNotFound
	}
	return *v.(*core.WalletBinding), nil
}

// InsertBinding stores the binding if the wallet is not bound yet
func (s *MemoryStore) InsertBinding(ctx context.Context, binding core.WalletBinding) error {
	b := binding
	if _, loaded := s.bindings.LoadOrStore(b.WalletAddress, &b); loaded {
		return core.ErrWalletAlreadyBound
	}
	return nil
}

// ListBindings returns the wallets bound to an account, oldest first
func (s *MemoryStore) ListBindings(ctx context.Context, accountID string) ([]core.WalletBinding, error) {
	var out []core.WalletBinding
	s.bindings.Range(func(_, value any) bool {
		if b := value.(*core.WalletBinding); b.AccountID == accountID {
			out = append(out, *b)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].BoundAt.Before(out[j].BoundAt) })
	return out, nil
}

// CreateAccount stores a new account, reserving its username first
func (s *MemoryStore) CreateAccount(ctx context.Context, account core.Account) error {
	if _, loaded := s.usernames.LoadOrStore(strings.ToLower(account.Username), account.ID); loaded {
		return core.ErrUsernameTaken
	}
	a := account
	s.accounts.Store(a.ID, &a)
	return nil
}

// GetAccount returns an account by id
func (s *MemoryStore) GetAccount(ctx context.Context, id string) (core.Account, error) {
	v, ok := s.accounts.Load(id)
	if !ok {
		return core.Account{}, core.ErrAccountNotFound
	}
	return *v.(*core.Account), nil
}

// GetAccountByUsername returns an account by case-insensitive username
func (s *MemoryStore) GetAccountByUsername(ctx context.Context, username string) (core.Account, error) {
	id, ok := s.usernames.Load(strings.ToLower(username))
	if !ok {
		return core.Account{}, core.ErrAccountNotFound
	}
	return s.GetAccount(ctx, id.(string))
}

// EnsureWalletAccount creates the account if missing, otherwise records a login
func (s *MemoryStore) EnsureWalletAccount(ctx context.Context, account core.Account) error {
	a := account
	if _, loaded := s.accounts.LoadOrStore(a.ID, &a); loaded {
		return s.TouchLogin(ctx, a.ID, a.LastLoginAt)
	}
	s.usernames.LoadOrStore(strings.ToLower(a.Username), a.ID)
	return nil
}

// TouchLogin records the last login time of an account
func (s *MemoryStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	for {
		v, ok := s.accounts.Load(id)
		if !ok {
			return core.ErrAccountNotFound
		}
		updated := *v.(*core.Account)
		updated.LastLoginAt = at
		if s.accounts.CompareAndSwap(id, v, &updated) {
			return nil
		}
	}
}
