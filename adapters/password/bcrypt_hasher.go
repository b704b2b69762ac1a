// Package password hashes local account passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"github.com/wubuku/UniAuth/core"
	"github.com/wubuku/UniAuth/ports"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements ports.PasswordHasher
type BcryptHasher struct {
	cost int
}

var _ ports.PasswordHasher = (*BcryptHasher)(nil)

// NewBcryptHasher creates a hasher with the given cost, falling back to
// bcrypt.DefaultCost when cost is out of range
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of password. Passwords longer than 72 bytes
// are rejected with core.ErrInvalidRegistration.
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidRegistration, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare checks password against hash, returning core.ErrInvalidCredentials
// on mismatch
func (h *BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword),
		errors.Is(err, bcrypt.ErrHashTooShort),
		errors.Is(err, bcrypt.ErrPasswordTooLong):
		return core.ErrInvalidCredentials
	case err != nil:
		return fmt.Errorf("failed to compare password: %w", err)
	}
	return nil
}
