package ports

import "github.com/wubuku/UniAuth/core"

// Tokenizer converts between sessions and signed tokens
type Tokenizer interface {
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)
}

// PasswordHasher hashes and checks local account passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
