package ports

import (
	"context"
	"time"

	"github.com/wubuku/UniAuth/core"
)

// Store interface for token invalidation
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}

// NonceStore holds at most one challenge per wallet address
type NonceStore interface {
	// Save stores the nonce, replacing any earlier nonce for the same wallet
	Save(ctx context.Context, nonce core.Nonce) error

	// Get returns the stored nonce for a wallet, consumed or not
	Get(ctx context.Context, address string) (core.Nonce, error)

	// ConsumeIfValid atomically checks the stored nonce against value and marks
	// it consumed at now. Exactly one concurrent caller can succeed.
	ConsumeIfValid(ctx context.Context, address, value string, now time.Time) (core.Nonce, error)

	// Invalidate discards any nonce stored for the wallet
	Invalidate(ctx context.Context, address string) error
}

// BindingStore persists wallet to account bindings
type BindingStore interface {
	GetBinding(ctx context.Context, address string) (core.WalletBinding, error)

	// InsertBinding creates the binding only if the wallet is unbound,
	// returning core.ErrWalletAlreadyBound otherwise
	InsertBinding(ctx context.Context, binding core.WalletBinding) error

	ListBindings(ctx context.Context, accountID string) ([]core.WalletBinding, error)
}

// AccountStore persists account identities
type AccountStore interface {
	// CreateAccount inserts a new account, returning core.ErrUsernameTaken on a
	// username collision
	CreateAccount(ctx context.Context, account core.Account) error

	GetAccount(ctx context.Context, id string) (core.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (core.Account, error)

	// EnsureWalletAccount creates the account for a freshly bound wallet if it
	// does not exist yet and records the login time either way
	EnsureWalletAccount(ctx context.Context, account core.Account) error

	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// Sweeper removes nonces that expired before the cutoff. Expired and
// consumed nonces are rejected on read anyway, so sweeping is only hygiene.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
