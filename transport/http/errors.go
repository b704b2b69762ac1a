package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wubuku/UniAuth/core"
)

// Error codes returned in the errorCode field
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeInvalidNonce       = "INVALID_NONCE"
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeMalformedSignature = "MALFORMED_SIGNATURE"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeWalletAlreadyBound = "WALLET_ALREADY_BOUND"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenInvalidated   = "TOKEN_INVALIDATED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// abortWithError writes the error body and stops the handler chain
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":    status,
		"errorCode": code,
		"message":   message,
	})
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	abortWithError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
}

// rejection maps a verification rejection onto an HTTP status and error code.
// Nonce and signature failures share one response so callers cannot tell
// which check failed.
func rejection(reason core.Reason) (int, string, string) {
	switch reason {
	case core.ReasonInvalidAddress:
		return http.StatusBadRequest, CodeInvalidAddress, "Invalid wallet address format"
	case core.ReasonMalformedNonce:
		return http.StatusBadRequest, CodeInvalidNonce, "Invalid nonce format"
	case core.ReasonMalformedMessage:
		return http.StatusBadRequest, CodeInvalidMessage, "Invalid sign-in message"
	case core.ReasonMalformedSignature:
		return http.StatusBadRequest, CodeMalformedSignature, "Invalid signature format"
	case core.ReasonWalletAlreadyBound:
		return http.StatusConflict, CodeWalletAlreadyBound, "Wallet is already bound to an account"
	case core.ReasonAccountNotFound:
		return http.StatusNotFound, CodeAccountNotFound, "Account not found"
	default:
		return http.StatusUnauthorized, CodeInvalidSignature, "Signature verification failed"
	}
}

// tokenError maps session token failures
func tokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrTokenExpired):
		abortWithError(c, http.StatusUnauthorized, CodeTokenExpired, "Token expired")
	case errors.Is(err, core.ErrTokenInvalidated):
		abortWithError(c, http.StatusUnauthorized, CodeTokenInvalidated, "Token has been invalidated")
	case errors.Is(err, core.ErrInvalidToken):
		abortWithError(c, http.StatusBadRequest, CodeInvalidToken, "Invalid token")
	default:
		internalError(c, err)
	}
}
