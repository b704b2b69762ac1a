package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wubuku/UniAuth/core"
	"github.com/wubuku/UniAuth/internal/metrics"
	"github.com/wubuku/UniAuth/ports"
)

const (
	minPasswordLength = 8
	// bcrypt only accepts this many bytes
	maxPasswordLength = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// RegisterRequest carries the fields of a local account registration
type RegisterRequest struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// AccountService manages local username/password accounts. It is the
// credential collaborator wallet bindings attach to.
type AccountService struct {
	accounts ports.AccountStore
	hasher   ports.PasswordHasher
	sessions *AuthService
	logger   zerolog.Logger
}

// NewAccountService creates a new account service issuing sessions through sessions
func NewAccountService(accounts ports.AccountStore, hasher ports.PasswordHasher, sessions *AuthService, logger zerolog.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		hasher:   hasher,
		sessions: sessions,
		logger:   logger.With().Str("component", "accounts").Logger(),
	}
}

// Register creates a local account
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (core.Account, error) {
	defer metrics.ObserveOperation(metrics.OpRegister, time.Now())

	if err := validateRegistration(req); err != nil {
		return core.Account{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return core.Account{}, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}

	account := core.Account{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Provider:     core.ProviderLocal,
		CreatedAt:    s.sessions.now(),
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, core.ErrUsernameTaken) {
			return core.Account{}, err
		}
		return core.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	metrics.AccountsCreatedTotal.WithLabelValues(string(core.ProviderLocal)).Inc()
	s.logger.Info().Str("account_id", account.ID).Str("username", account.Username).Msg("account registered")
	return account, nil
}

// Login checks a username and password and issues a session
func (s *AccountService) Login(ctx context.Context, username, password string) (core.Account, core.SessionTokens, error) {
	defer metrics.ObserveOperation(metrics.OpLogin, time.Now())

	account, err := s.accounts.GetAccountByUsername(ctx, username)
	if errors.Is(err, core.ErrAccountNotFound) {
		return core.Account{}, core.SessionTokens{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.Account{}, core.SessionTokens{}, fmt.Errorf("failed to load account: %w", err)
	}

	// Wallet-only accounts have no password to log in with
	if account.PasswordHash == "" {
		return core.Account{}, core.SessionTokens{}, core.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return core.Account{}, core.SessionTokens{}, err
	}

	if err := s.accounts.TouchLogin(ctx, account.ID, s.sessions.now()); err != nil {
		return core.Account{}, core.SessionTokens{}, fmt.Errorf("failed to record login: %w", err)
	}

	tokens, err := s.sessions.IssueSession(ctx, account, "")
	if err != nil {
		return core.Account{}, core.SessionTokens{}, err
	}

	s.logger.Info().Str("account_id", account.ID).Msg("password login")
	return account, tokens, nil
}

// GetAccount returns an account by id
func (s *AccountService) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.accounts.GetAccount(ctx, id)
}

func validateRegistration(req RegisterRequest) error {
	switch {
	case !usernamePattern.MatchString(req.Username):
		return fmt.Errorf("username must be 3-64 letters, digits, '.', '_' or '-': %w", core.ErrInvalidRegistration)
	case core.IsValidAddress(req.Username):
		// Wallet accounts use their address as username
		return fmt.Errorf("username must not be a wallet address: %w", core.ErrInvalidRegistration)
	case len(req.Password) < minPasswordLength:
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, core.ErrInvalidRegistration)
	case len(req.Password) > maxPasswordLength:
		return fmt.Errorf("password must be at most %d bytes: %w", maxPasswordLength, core.ErrInvalidRegistration)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("invalid email: %w", core.ErrInvalidRegistration)
	}
	return nil
}
