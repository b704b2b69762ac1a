package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wubuku/UniAuth/core"
	"github.com/wubuku/UniAuth/ports"
)

const (
	AudienceAccess  = "session:access"
	AudienceRefresh = "session:refresh"
)

// DefaultIssuer is stamped into every token unless overridden
const DefaultIssuer = "uniauth"

// JWTTokenizer implements the Tokenizer interface with ES256 signed JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	issuer  string
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// NewJWTTokenizer creates a new JWT tokenizer. An empty issuer means DefaultIssuer.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, issuer string) *JWTTokenizer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &JWTTokenizer{signKey: signKey, issuer: issuer}
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.AccountID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		Username:  session.Username,
		Wallet:    session.WalletAddress,
		RefreshID: session.RefreshID,
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signedToken, nil
}

// SessionToRefreshToken converts a Session to a refresh JWT token.
// The refresh token's JWT ID is the session's RefreshID.
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.AccountID,
			ID:        session.RefreshID,
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		Username: session.Username,
		Wallet:   session.WalletAddress,
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signedToken, nil
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}

	return &core.Session{
		ID:            claims.ID,
		AccountID:     claims.Subject,
		Username:      claims.Username,
		WalletAddress: claims.Wallet,
		IssuedAt:      claims.IssuedAt.Time,
		AccessExpiry:  claims.ExpiresAt.Time,
		RefreshID:     claims.RefreshID,
	}, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session.
// Only the refresh half of the session is populated.
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}

	return &core.Session{
		AccountID:     claims.Subject,
		Username:      claims.Username,
		WalletAddress: claims.Wallet,
		IssuedAt:      claims.IssuedAt.Time,
		RefreshExpiry: claims.ExpiresAt.Time,
		RefreshID:     claims.ID,
	}, nil
}

// parse verifies signature, audience, issuer and expiry, filling claims
func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}
	return nil
}
