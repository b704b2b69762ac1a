package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wubuku/UniAuth/core"
	"github.com/wubuku/UniAuth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService    *service.AuthService
	accountService *service.AccountService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, accountService *service.AccountService) *AuthHandlers {
	return &AuthHandlers{
		authService:    authService,
		accountService: accountService,
	}
}

type walletProofRequest struct {
	WalletAddress string `json:"walletAddress"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	Nonce         string `json:"nonce"`
}

func (r walletProofRequest) toService() service.VerifyRequest {
	return service.VerifyRequest{
		WalletAddress: r.WalletAddress,
		Message:       r.Message,
		Signature:     r.Signature,
		Nonce:         r.Nonce,
	}
}

func tokensBody(tokens core.SessionTokens) gin.H {
	return gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"tokenType":    tokens.TokenType,
		"expiresIn":    tokens.ExpiresIn,
	}
}

// Nonce issues a sign-in challenge for a wallet
func (h *AuthHandlers) Nonce(c *gin.Context) {
	var chainID int64
	if raw := c.Query("chainId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "chainId must be a positive integer")
			return
		}
		chainID = id
	}

	nonce, err := h.authService.IssueChallenge(c.Request.Context(), c.Param("address"), chainID)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			abortWithError(c, http.StatusBadRequest, CodeInvalidAddress, "Invalid wallet address format")
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":     nonce.Value,
		"message":   nonce.Message,
		"expiresIn": int64(nonce.ExpiresAt.Sub(nonce.IssuedAt) / time.Second),
		"chainId":   nonce.ChainID,
	})
}

// InvalidateNonce discards the wallet's outstanding challenge
func (h *AuthHandlers) InvalidateNonce(c *gin.Context) {
	if err := h.authService.InvalidateNonce(c.Request.Context(), c.Param("address")); err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			abortWithError(c, http.StatusBadRequest, CodeInvalidAddress, "Invalid wallet address format")
			return
		}
		internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Verify signs a wallet in with a signed challenge
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req walletProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	result, err := h.authService.Verify(c.Request.Context(), req.toService())
	if err != nil {
		internalError(c, err)
		return
	}
	if !result.Verified() {
		status, code, message := rejection(result.Reason)
		abortWithError(c, status, code, message)
		return
	}

	body := tokensBody(result.Tokens)
	body["walletAddress"] = result.WalletAddress
	body["userId"] = result.AccountID
	body["isNewUser"] = result.IsNewUser
	c.JSON(http.StatusOK, body)
}

// Status reports whether a wallet is bound to an account
func (h *AuthHandlers) Status(c *gin.Context) {
	address := c.Param("address")

	bound, err := h.authService.IsBound(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			abortWithError(c, http.StatusBadRequest, CodeInvalidAddress, "Invalid wallet address format")
			return
		}
		internalError(c, err)
		return
	}

	normalized, _ := core.NormalizeAddress(address)
	c.JSON(http.StatusOK, gin.H{
		"walletAddress": normalized,
		"isBound":       bound,
	})
}

// Bind attaches a wallet to the authenticated account
func (h *AuthHandlers) Bind(c *gin.Context) {
	session := sessionFrom(c)

	var req walletProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	result, err := h.authService.Bind(c.Request.Context(), session.AccountID, req.toService())
	if err != nil {
		internalError(c, err)
		return
	}
	if !result.Verified() {
		status, code, message := rejection(result.Reason)
		abortWithError(c, status, code, message)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"walletAddress": result.WalletAddress,
		"userId":        result.AccountID,
		"message":       "Wallet bound successfully",
	})
}

// Wallets lists the wallets bound to the authenticated account
func (h *AuthHandlers) Wallets(c *gin.Context) {
	session := sessionFrom(c)

	bindings, err := h.authService.ListWallets(c.Request.Context(), session.AccountID)
	if err != nil {
		internalError(c, err)
		return
	}

	wallets := make([]gin.H, 0, len(bindings))
	for _, b := range bindings {
		wallets = append(wallets, gin.H{
			"walletAddress": b.WalletAddress,
			"chainId":       b.ChainID,
			"boundAt":       b.BoundAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  session.AccountID,
		"wallets": wallets,
	})
}

// Register creates a local account
func (h *AuthHandlers) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required"`
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	account, err := h.accountService.Register(c.Request.Context(), service.RegisterRequest{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidRegistration):
			abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		case errors.Is(err, core.ErrUsernameTaken):
			abortWithError(c, http.StatusConflict, CodeUsernameTaken, "Username is already taken")
		default:
			internalError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userId":      account.ID,
		"username":    account.Username,
		"email":       account.Email,
		"displayName": account.DisplayName,
	})
}

// Login authenticates a local account. Credentials come from a JSON body
// or, failing that, from query parameters.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if c.ContentType() == "application/json" {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
			return
		}
	}
	if req.Username == "" {
		req.Username = c.Query("username")
		req.Password = c.Query("password")
	}
	if req.Username == "" || req.Password == "" {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "username and password are required")
		return
	}

	account, tokens, err := h.accountService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			abortWithError(c, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid username or password")
			return
		}
		internalError(c, err)
		return
	}

	body := tokensBody(tokens)
	body["userId"] = account.ID
	c.JSON(http.StatusOK, body)
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		tokenError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokensBody(tokens))
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		tokenError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	session := sessionFrom(c)

	account, err := h.accountService.GetAccount(c.Request.Context(), session.AccountID)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			abortWithError(c, http.StatusNotFound, CodeAccountNotFound, "Account not found")
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":        account.ID,
		"username":      account.Username,
		"email":         account.Email,
		"displayName":   account.DisplayName,
		"provider":      account.Provider,
		"walletAddress": session.WalletAddress,
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
