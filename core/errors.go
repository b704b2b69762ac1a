package core

import "errors"

var (
	ErrInvalidAddress          = errors.New("invalid wallet address format")
	ErrMalformedNonce          = errors.New("malformed nonce")
	ErrMalformedMessage        = errors.New("malformed challenge message")
	ErrNonceNotFound           = errors.New("nonce not found")
	ErrNonceExpired            = errors.New("nonce has expired")
	ErrNonceAlreadyConsumed    = errors.New("nonce already consumed")
	ErrMessageMismatch         = errors.New("message does not match issued challenge")
	ErrMalformedSignature      = errors.New("malformed signature")
	ErrSignatureMismatch       = errors.New("signature does not match wallet address")
	ErrBindingNotFound         = errors.New("wallet binding not found")
	ErrWalletAlreadyBound      = errors.New("wallet already bound to an account")
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountCreationConflict = errors.New("account creation conflict")
	ErrUsernameTaken           = errors.New("username already taken")
	ErrInvalidRegistration     = errors.New("invalid registration")
	ErrInvalidCredentials      = errors.New("invalid credentials")

	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")
)
