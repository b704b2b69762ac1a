package core

import "errors"

// Outcome is the terminal state of a verification attempt
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeVerified
)

// Reason names why a verification attempt was rejected
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInvalidAddress
	ReasonMalformedNonce
	ReasonMalformedMessage
	ReasonMalformedSignature
	ReasonNonceNotFound
	ReasonNonceExpired
	ReasonNonceAlreadyConsumed
	ReasonMessageMismatch
	ReasonSignatureMismatch
	ReasonWalletAlreadyBound
	ReasonAccountNotFound
)

var reasonNames = map[Reason]string{
	ReasonNone:                 "none",
	ReasonInvalidAddress:       "invalid_address",
	ReasonMalformedNonce:       "malformed_nonce",
	ReasonMalformedMessage:     "malformed_message",
	ReasonMalformedSignature:   "malformed_signature",
	ReasonNonceNotFound:        "nonce_not_found",
	ReasonNonceExpired:         "nonce_expired",
	ReasonNonceAlreadyConsumed: "nonce_already_consumed",
	ReasonMessageMismatch:      "message_mismatch",
	ReasonSignatureMismatch:    "signature_mismatch",
	ReasonWalletAlreadyBound:   "wallet_already_bound",
	ReasonAccountNotFound:      "account_not_found",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// reasonErrors maps expected failures onto their rejection reason
var reasonErrors = []struct {
	err    error
	reason Reason
}{
	{ErrInvalidAddress, ReasonInvalidAddress},
	{ErrMalformedNonce, ReasonMalformedNonce},
	{ErrMalformedMessage, ReasonMalformedMessage},
	{ErrMalformedSignature, ReasonMalformedSignature},
	{ErrNonceNotFound, ReasonNonceNotFound},
	{ErrNonceExpired, ReasonNonceExpired},
	{ErrNonceAlreadyConsumed, ReasonNonceAlreadyConsumed},
	{ErrMessageMismatch, ReasonMessageMismatch},
	{ErrSignatureMismatch, ReasonSignatureMismatch},
	{ErrWalletAlreadyBound, ReasonWalletAlreadyBound},
	{ErrAccountNotFound, ReasonAccountNotFound},
}

// ReasonFor classifies an error as an expected rejection.
// The second return value is false for unexpected faults.
func ReasonFor(err error) (Reason, bool) {
	for _, re := range reasonErrors {
		if errors.Is(err, re.err) {
			return re.reason, true
		}
	}
	return ReasonNone, false
}

// VerifyResult is the tagged outcome of the wallet verification pipeline
type VerifyResult struct {
	Outcome       Outcome
	Reason        Reason // ReasonNone when verified
	WalletAddress string
	AccountID     string
	IsNewUser     bool
	Tokens        SessionTokens // Only set by login, not by bind
}

// Verified reports whether the attempt succeeded
func (r VerifyResult) Verified() bool {
	return r.Outcome == OutcomeVerified
}

// Rejected builds a rejected result for the given reason
func Rejected(reason Reason, address string) VerifyResult {
	return VerifyResult{Outcome: OutcomeRejected, Reason: reason, WalletAddress: address}
}
