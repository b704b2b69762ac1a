// Package client is a Go client for the uniauth HTTP API.
package client

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/wubuku/UniAuth/internal/eth"
)

// Challenge is a sign-in challenge issued for a wallet
type Challenge struct {
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expiresIn"`
	ChainID   int64  `json:"chainId"`
}

// Tokens is a session token pair
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login is the result of a successful wallet sign-in
type Login struct {
	Tokens
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress"`
	IsNewUser     bool   `json:"isNewUser"`
}

// Binding is a wallet attached to the caller's account
type Binding struct {
	WalletAddress string `json:"walletAddress"`
	UserID        string `json:"userId"`
}

// Wallet is one entry of the caller's wallet list
type Wallet struct {
	WalletAddress string `json:"walletAddress"`
	ChainID       int64  `json:"chainId"`
}

// APIError is the error body returned by the service
type APIError struct {
	Status    int    `json:"status"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.ErrorCode, e.Message)
}

type proof struct {
	WalletAddress string `json:"walletAddress"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	Nonce         string `json:"nonce"`
}

// Client talks to a uniauth server
type Client struct {
	http *resty.Client
}

// New creates a client for the server at baseURL
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
	}
}

// Challenge requests a sign-in challenge. A zero chainID lets the server
// pick its default chain.
func (c *Client) Challenge(ctx context.Context, address string, chainID int64) (Challenge, error) {
	var out Challenge
	req := c.http.R().SetContext(ctx).SetPathParam("address", address)
	if chainID > 0 {
		req.SetQueryParam("chainId", strconv.FormatInt(chainID, 10))
	}
	err := send(req, &out, "GET", "/api/auth/web3/nonce/{address}")
	return out, err
}

// Verify submits a signed challenge
func (c *Client) Verify(ctx context.Context, address string, ch Challenge, signature string) (Login, error) {
	var out Login
	req := c.http.R().SetContext(ctx).SetBody(proof{
		WalletAddress: address,
		Message:       ch.Message,
		Signature:     signature,
		Nonce:         ch.Nonce,
	})
	err := send(req, &out, "POST", "/api/auth/web3/verify")
	return out, err
}

// LoginWithKey runs the full challenge and verify round trip, signing with key
func (c *Client) LoginWithKey(ctx context.Context, key *ecdsa.PrivateKey) (Login, error) {
	address := eth.AddressOf(key)

	ch, err := c.Challenge(ctx, address, 0)
	if err != nil {
		return Login{}, err
	}
	signature, err := eth.SignPersonalMessage(key, ch.Message)
	if err != nil {
		return Login{}, err
	}
	return c.Verify(ctx, address, ch, signature)
}

// BindKey attaches the wallet behind key to the account owning accessToken
func (c *Client) BindKey(ctx context.Context, accessToken string, key *ecdsa.PrivateKey) (Binding, error) {
	address := eth.AddressOf(key)

	ch, err := c.Challenge(ctx, address, 0)
	if err != nil {
		return Binding{}, err
	}
	signature, err := eth.SignPersonalMessage(key, ch.Message)
	if err != nil {
		return Binding{}, err
	}

	var out Binding
	req := c.http.R().SetContext(ctx).SetAuthToken(accessToken).SetBody(proof{
		WalletAddress: address,
		Message:       ch.Message,
		Signature:     signature,
		Nonce:         ch.Nonce,
	})
	err = send(req, &out, "POST", "/api/auth/web3/bind")
	return out, err
}

// IsBound reports whether address is bound to an account
func (c *Client) IsBound(ctx context.Context, address string) (bool, error) {
	var out struct {
		IsBound bool `json:"isBound"`
	}
	req := c.http.R().SetContext(ctx).SetPathParam("address", address)
	err := send(req, &out, "GET", "/api/auth/web3/status/{address}")
	return out.IsBound, err
}

// Wallets lists the wallets bound to the account owning accessToken
func (c *Client) Wallets(ctx context.Context, accessToken string) ([]Wallet, error) {
	var out struct {
		Wallets []Wallet `json:"wallets"`
	}
	req := c.http.R().SetContext(ctx).SetAuthToken(accessToken)
	err := send(req, &out, "GET", "/api/auth/web3/wallets")
	return out.Wallets, err
}

// Refresh rotates a refresh token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var out Tokens
	req := c.http.R().SetContext(ctx).SetBody(map[string]string{"refreshToken": refreshToken})
	err := send(req, &out, "POST", "/api/auth/refresh")
	return out, err
}

// Logout revokes a refresh token and the access tokens issued with it
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := c.http.R().SetContext(ctx).SetBody(map[string]string{"refreshToken": refreshToken})
	return send(req, nil, "POST", "/api/auth/logout")
}

func send(req *resty.Request, out any, method, path string) error {
	apiErr := &APIError{}
	req.SetError(apiErr)
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		if apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode()
			apiErr.Message = resp.Status()
		}
		return apiErr
	}
	return nil
}
