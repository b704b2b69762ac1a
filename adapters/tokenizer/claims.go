package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with session-specific ones.
// The subject is the account id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username  string `json:"usr"`
	Wallet    string `json:"wal,omitempty"` // Wallet used to log in, if any
	RefreshID string `json:"rid"`           // ID of the paired refresh token
}

// RefreshClaims carry just enough to mint a new session for the account
type RefreshClaims struct {
	jwt.RegisteredClaims
	Username string `json:"usr"`
	Wallet   string `json:"wal,omitempty"`
}
