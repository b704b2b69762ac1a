package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wubuku/UniAuth/core"
	"github.com/wubuku/UniAuth/internal/eth"
	"github.com/wubuku/UniAuth/internal/metrics"
	"github.com/wubuku/UniAuth/internal/siwe"
)

// nonceBytes is the entropy of a challenge nonce (128 bits)
const nonceBytes = 16

// Defaults for accounts created on first wallet login
const (
	walletDisplayName = "Web3 User"
	walletEmailDomain = "web3.local"
)

// VerifyRequest is a signed challenge submitted by a wallet owner
type VerifyRequest struct {
	WalletAddress string
	Message       string
	Signature     string
	Nonce         string
}

// IssueChallenge creates a fresh nonce for the wallet, superseding any
// previous one, and renders the message the wallet owner must sign
func (s *AuthService) IssueChallenge(ctx context.Context, address string, chainID int64) (core.Nonce, error) {
	address, err := core.NormalizeAddress(address)
	if err != nil {
		return core.Nonce{}, err
	}
	if chainID <= 0 {
		chainID = s.cfg.DefaultChainID
	}

	value, err := newNonceValue()
	if err != nil {
		return core.Nonce{}, err
	}

	now := s.now()
	nonce := core.Nonce{
		Value:         value,
		WalletAddress: address,
		ChainID:       chainID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.cfg.NonceTTL),
	}
	if nonce.Message, err = s.composer.Render(address, chainID, value, nonce.IssuedAt, nonce.ExpiresAt); err != nil {
		return core.Nonce{}, fmt.Errorf("failed to render challenge: %w", err)
	}

	if err := s.stores.Nonces.Save(ctx, nonce); err != nil {
		return core.Nonce{}, fmt.Errorf("failed to save nonce: %w", err)
	}

	metrics.ChallengesIssuedTotal.Inc()
	s.logger.Debug().Str("wallet", address).Int64("chain_id", chainID).Msg("challenge issued")
	return nonce, nil
}

// InvalidateNonce discards any outstanding challenge for the wallet
func (s *AuthService) InvalidateNonce(ctx context.Context, address string) error {
	address, err := core.NormalizeAddress(address)
	if err != nil {
		return err
	}
	if err := s.stores.Nonces.Invalidate(ctx, address); err != nil {
		return fmt.Errorf("failed to invalidate nonce: %w", err)
	}
	return nil
}

// Lookup returns the binding for a wallet
func (s *AuthService) Lookup(ctx context.Context, address string) (core.WalletBinding, error) {
	address, err := core.NormalizeAddress(address)
	if err != nil {
		return core.WalletBinding{}, err
	}
	return s.stores.Bindings.GetBinding(ctx, address)
}

// IsBound reports whether the wallet is bound to any account
func (s *AuthService) IsBound(ctx context.Context, address string) (bool, error) {
	_, err := s.Lookup(ctx, address)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrBindingNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ListWallets returns the wallets bound to an account, oldest first
func (s *AuthService) ListWallets(ctx context.Context, accountID string) ([]core.WalletBinding, error) {
	bindings, err := s.stores.Bindings.ListBindings(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return bindings, nil
}

// Verify runs the wallet sign-in pipeline. Expected failures come back as a
// rejected result; the error return is reserved for backend faults.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (core.VerifyResult, error) {
	defer metrics.ObserveOperation(metrics.OpVerify, time.Now())

	address, nonce, err := s.checkProof(ctx, req)
	if err != nil {
		return s.reject(metrics.OpVerify, req.WalletAddress, err)
	}

	accountID, isNew, err := s.ResolveOrCreate(ctx, address, nonce.ChainID)
	if err != nil {
		return s.fault(metrics.OpVerify, address, err)
	}

	// The binding winner owns account creation; this also repairs a binding
	// whose account write was lost
	now := s.now()
	if err := s.stores.Accounts.EnsureWalletAccount(ctx, core.Account{
		ID:          accountID,
		Username:    address,
		Email:       address + "@" + walletEmailDomain,
		DisplayName: walletDisplayName,
		Provider:    core.ProviderWeb3,
		CreatedAt:   now,
		LastLoginAt: now,
	}); err != nil {
		return s.fault(metrics.OpVerify, address, fmt.Errorf("failed to ensure account: %w", err))
	}

	account, err := s.stores.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return s.fault(metrics.OpVerify, address, fmt.Errorf("failed to load account: %w", err))
	}

	tokens, err := s.IssueSession(ctx, account, address)
	if err != nil {
		return s.fault(metrics.OpVerify, address, err)
	}

	if isNew {
		metrics.AccountsCreatedTotal.WithLabelValues(string(core.ProviderWeb3)).Inc()
	}
	metrics.RecordVerification(metrics.OpVerify, metrics.OutcomeVerified, "")

	if err := s.eventPub.PublishLogin(ctx, address, accountID, isNew); err != nil {
		s.logger.Warn().Err(err).Str("wallet", address).Msg("failed to publish login event")
	}

	s.logger.Info().
		Str("wallet", address).
		Str("account_id", accountID).
		Bool("new_user", isNew).
		Msg("wallet login verified")

	return core.VerifyResult{
		Outcome:       core.OutcomeVerified,
		WalletAddress: address,
		AccountID:     accountID,
		IsNewUser:     isNew,
		Tokens:        tokens,
	}, nil
}

// Bind proves ownership of a wallet and attaches it to an existing account
func (s *AuthService) Bind(ctx context.Context, accountID string, req VerifyRequest) (core.VerifyResult, error) {
	defer metrics.ObserveOperation(metrics.OpBind, time.Now())

	address, nonce, err := s.checkProof(ctx, req)
	if err != nil {
		return s.reject(metrics.OpBind, req.WalletAddress, err)
	}

	if err := s.BindToExistingAccount(ctx, address, accountID, nonce.ChainID); err != nil {
		return s.reject(metrics.OpBind, address, err)
	}

	metrics.RecordVerification(metrics.OpBind, metrics.OutcomeVerified, "")

	if err := s.eventPub.PublishBound(ctx, address, accountID); err != nil {
		s.logger.Warn().Err(err).Str("wallet", address).Msg("failed to publish bound event")
	}

	s.logger.Info().Str("wallet", address).Str("account_id", accountID).Msg("wallet bound")

	return core.VerifyResult{
		Outcome:       core.OutcomeVerified,
		WalletAddress: address,
		AccountID:     accountID,
	}, nil
}

// ResolveOrCreate returns the account bound to the wallet, binding the wallet
// to a freshly generated account id if it is unbound. Exactly one concurrent
// caller for an unbound wallet observes isNew.
func (s *AuthService) ResolveOrCreate(ctx context.Context, address string, chainID int64) (accountID string, isNew bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		accountID, isNew, err = s.resolveOrCreate(ctx, address, chainID)
		if !errors.Is(err, core.ErrAccountCreationConflict) {
			return accountID, isNew, err
		}
		s.logger.Warn().Str("wallet", address).Int("attempt", attempt+1).Msg("binding conflict without a visible winner")
	}
	return "", false, err
}

func (s *AuthService) resolveOrCreate(ctx context.Context, address string, chainID int64) (string, bool, error) {
	existing, err := s.stores.Bindings.GetBinding(ctx, address)
	if err == nil {
		return existing.AccountID, false, nil
	}
	if !errors.Is(err, core.ErrBindingNotFound) {
		return "", false, fmt.Errorf("failed to read binding: %w", err)
	}

	binding := core.WalletBinding{
		WalletAddress: address,
		AccountID:     uuid.New().String(),
		ChainID:       chainID,
		BoundAt:       s.now(),
		Metadata:      map[string]string{"source": "login"},
	}

	err = s.stores.Bindings.InsertBinding(ctx, binding)
	if err == nil {
		return binding.AccountID, true, nil
	}
	if !errors.Is(err, core.ErrWalletAlreadyBound) {
		return "", false, fmt.Errorf("failed to insert binding: %w", err)
	}

	// Lost the race; the winner's binding is authoritative
	winner, err := s.stores.Bindings.GetBinding(ctx, address)
	if errors.Is(err, core.ErrBindingNotFound) {
		return "", false, core.ErrAccountCreationConflict
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read winning binding: %w", err)
	}
	return winner.AccountID, false, nil
}

// BindToExistingAccount binds an unbound wallet to an existing account
func (s *AuthService) BindToExistingAccount(ctx context.Context, address, accountID string, chainID int64) error {
	if _, err := s.stores.Accounts.GetAccount(ctx, accountID); err != nil {
		return err
	}

	return s.stores.Bindings.InsertBinding(ctx, core.WalletBinding{
		WalletAddress: address,
		AccountID:     accountID,
		ChainID:       chainID,
		BoundAt:       s.now(),
		Metadata:      map[string]string{"source": "bind"},
	})
}

// checkProof validates a signed challenge, consuming its nonce. Input is
// checked cheapest first so malformed requests never reach the store, and
// a consumed nonce stays consumed whatever happens afterwards.
func (s *AuthService) checkProof(ctx context.Context, req VerifyRequest) (string, core.Nonce, error) {
	address, err := core.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return "", core.Nonce{}, err
	}
	if !isNonceValue(req.Nonce) {
		return "", core.Nonce{}, core.ErrMalformedNonce
	}
	if _, err := eth.DecodeSignature(req.Signature); err != nil {
		return "", core.Nonce{}, err
	}

	msg, err := siwe.Parse(req.Message)
	if err != nil {
		return "", core.Nonce{}, err
	}
	if err := s.composer.Check(msg, address, req.Nonce); err != nil {
		return "", core.Nonce{}, err
	}

	nonce, err := s.stores.Nonces.ConsumeIfValid(ctx, address, req.Nonce, s.now())
	if err != nil {
		return "", core.Nonce{}, err
	}

	if nonce.Message != req.Message {
		return "", core.Nonce{}, core.ErrMessageMismatch
	}

	if err := eth.Verify(address, req.Message, req.Signature); err != nil {
		return "", core.Nonce{}, err
	}

	return address, nonce, nil
}

// reject turns an expected failure into a rejected result, passing
// unexpected faults through as errors
func (s *AuthService) reject(op, address string, err error) (core.VerifyResult, error) {
	reason, ok := core.ReasonFor(err)
	if !ok {
		return s.fault(op, address, err)
	}

	metrics.RecordVerification(op, metrics.OutcomeRejected, reason.String())
	s.logger.Info().
		Str("operation", op).
		Str("wallet", address).
		Stringer("reason", reason).
		Msg("wallet verification rejected")

	return core.Rejected(reason, address), nil
}

func (s *AuthService) fault(op, address string, err error) (core.VerifyResult, error) {
	metrics.RecordVerification(op, metrics.OutcomeError, "")
	s.logger.Error().Err(err).Str("operation", op).Str("wallet", address).Msg("wallet verification failed")
	return core.VerifyResult{}, err
}

func newNonceValue() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// isNonceValue reports whether v looks like a nonce this service issued
func isNonceValue(v string) bool {
	if len(v) != 2*nonceBytes {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
