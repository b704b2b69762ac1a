package core

import "time"

// AuthProvider identifies how an account was first created
type AuthProvider string

const (
	// ProviderLocal is a username/password account
	ProviderLocal AuthProvider = "local"

	// ProviderWeb3 is an account created on first wallet login
	ProviderWeb3 AuthProvider = "web3"
)

// Nonce represents a one-time sign-in challenge issued to a single wallet
type Nonce struct {
	Value         string     // Random challenge value (128 bits, hex encoded)
	WalletAddress string     // Normalized lowercase wallet address
	ChainID       int64      // Chain the challenge was issued for
	Message       string     // Rendered challenge text the wallet owner signs
	IssuedAt      time.Time  // When the challenge was created
	ExpiresAt     time.Time  // When the challenge expires
	ConsumedAt    *time.Time // Set exactly once when the challenge is used
}

// Consumed reports whether the nonce has already been used
func (n Nonce) Consumed() bool {
	return n.ConsumedAt != nil
}

// Expired reports whether the nonce is past its expiry at the given instant
func (n Nonce) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// Active reports whether the nonce can still be consumed
func (n Nonce) Active(now time.Time) bool {
	return !n.Consumed() && !n.Expired(now)
}

// WalletBinding associates a wallet address with an application account
type WalletBinding struct {
	WalletAddress string            // Normalized lowercase wallet address, unique
	AccountID     string            // Account the wallet belongs to
	ChainID       int64             // Chain the wallet proved ownership on
	BoundAt       time.Time         // When the binding was created
	Metadata      map[string]string // Opaque key/value data
}

// Account is the identity record owned by the credential side of the system
type Account struct {
	ID           string
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string // Empty for wallet-only accounts
	Provider     AuthProvider
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier
	AccountID     string    // Account the session belongs to
	Username      string    // Username at the time of issuance
	WalletAddress string    // Wallet used to log in, empty for password logins
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// SessionTokens is the credential pair handed to a client after login
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64 // Access token lifetime in seconds
}
