package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wubuku/UniAuth/core"
	"github.com/wubuku/UniAuth/internal/siwe"
	"github.com/wubuku/UniAuth/ports"
)

// Stores groups the storage ports the services depend on. A single backend
// usually implements all of them.
type Stores struct {
	Revocations ports.Store
	Nonces      ports.NonceStore
	Bindings    ports.BindingStore
	Accounts    ports.AccountStore
}

// AuthService handles wallet authentication and session business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	stores    Stores
	eventPub  ports.EventPublisher
	composer  *siwe.Composer
	logger    zerolog.Logger
	cfg       Config
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	stores Stores,
	eventPub ports.EventPublisher,
	composer *siwe.Composer,
	cfg Config,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		tokenizer: tokenizer,
		stores:    stores,
		eventPub:  eventPub,
		composer:  composer,
		logger:    logger.With().Str("component", "auth").Logger(),
		cfg:       cfg.withDefaults(),
	}
}

// now returns the current time in UTC at millisecond precision, the
// resolution every store and the challenge text keep
func (s *AuthService) now() time.Time {
	return s.cfg.Clock().UTC().Truncate(time.Millisecond)
}

// IssueSession mints an access and refresh token pair for an account
func (s *AuthService) IssueSession(ctx context.Context, account core.Account, wallet string) (core.SessionTokens, error) {
	now := s.now()
	session := &core.Session{
		ID:            uuid.New().String(),
		AccountID:     account.ID,
		Username:      account.Username,
		WalletAddress: wallet,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.cfg.RefreshTTL),
		AccessExpiry:  now.Add(s.cfg.AccessTTL),
		RefreshID:     uuid.New().String(),
	}
	return s.sessionTokens(session)
}

func (s *AuthService) sessionTokens(session *core.Session) (core.SessionTokens, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return core.SessionTokens{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return core.SessionTokens{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return core.SessionTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (core.SessionTokens, error) {
	// Parse and validate the refresh token
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return core.SessionTokens{}, fmt.Errorf("invalid refresh token: %w", err)
	}

	now := s.now()
	if now.After(session.RefreshExpiry) {
		return core.SessionTokens{}, core.ErrTokenExpired
	}

	// Check if the token has been invalidated
	invalidated, err := s.stores.Revocations.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return core.SessionTokens{}, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return core.SessionTokens{}, core.ErrTokenInvalidated
	}

	// The account may have been removed since the token was issued
	account, err := s.stores.Accounts.GetAccount(ctx, session.AccountID)
	if errors.Is(err, core.ErrAccountNotFound) {
		return core.SessionTokens{}, core.ErrInvalidToken
	}
	if err != nil {
		return core.SessionTokens{}, fmt.Errorf("failed to load account: %w", err)
	}

	// Invalidate the old refresh token for the rest of its lifetime
	if err := s.stores.Revocations.InvalidateToken(ctx, session.RefreshID, session.RefreshExpiry.Sub(now)); err != nil {
		return core.SessionTokens{}, fmt.Errorf("failed to invalidate old token: %w", err)
	}

	tokens, err := s.IssueSession(ctx, account, session.WalletAddress)
	if err != nil {
		return core.SessionTokens{}, err
	}

	s.logger.Debug().Str("account_id", account.ID).Msg("session refreshed")
	return tokens, nil
}

// Logout invalidates a refresh token and, with it, every access token
// minted alongside it. An already expired token needs no revocation.
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if errors.Is(err, core.ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	remaining := session.RefreshExpiry.Sub(s.now())
	if remaining < time.Hour {
		// Keep the record a while even for nearly expired tokens, in case of clock skew
		remaining = time.Hour
	}

	if err := s.stores.Revocations.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// Publish logout event for cross-instance notifications
	if err := s.eventPub.PublishLogout(ctx, session.AccountID, session.RefreshID); err != nil {
		// The token is already invalidated in the store, which is the critical part
		s.logger.Warn().Err(err).Str("account_id", session.AccountID).Msg("failed to publish logout event")
	}

	s.logger.Info().Str("account_id", session.AccountID).Msg("logged out")
	return nil
}

// ValidateAccessToken parses an access token and checks it has not been
// revoked through its refresh token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if s.now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Logging out revokes the refresh token, and with it this access token
	if session.RefreshID != "" {
		invalidated, err := s.stores.Revocations.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}
