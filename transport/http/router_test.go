package http

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wubuku/UniAuth/adapters/events"
	"github.com/wubuku/UniAuth/adapters/password"
	"github.com/wubuku/UniAuth/adapters/store"
	"github.com/wubuku/UniAuth/adapters/tokenizer"
	"github.com/wubuku/UniAuth/internal/eth"
	"github.com/wubuku/UniAuth/internal/ratelimit"
	"github.com/wubuku/UniAuth/internal/siwe"
	"github.com/wubuku/UniAuth/service"
	"golang.org/x/crypto/bcrypt"
)

func setupTestRouter(t *testing.T, limiter *ratelimit.Limiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signKey, ""),
		service.Stores{Revocations: mem, Nonces: mem, Bindings: mem, Accounts: mem},
		events.NoopPublisher{},
		siwe.NewComposer("app.example.com", "", ""),
		service.DefaultConfig(),
		zerolog.Nop(),
	)
	accountService := service.NewAccountService(mem, password.NewBcryptHasher(bcrypt.MinCost), authService, zerolog.Nop())

	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	return SetupRouter(authService, accountService, limiter, zerolog.Nop())
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: eth.AddressOf(key)}
}

// challenge fetches a nonce for w and returns a signed verify body
func challenge(t *testing.T, router *gin.Engine, w wallet) map[string]string {
	t.Helper()

	resp, body := doRequest(t, router, http.MethodGet, "/api/auth/web3/nonce/"+w.address, nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	message := body["message"].(string)
	sig, err := eth.SignPersonalMessage(w.key, message)
	require.NoError(t, err)

	return map[string]string{
		"walletAddress": w.address,
		"message":       message,
		"signature":     sig,
		"nonce":         body["nonce"].(string),
	}
}

func assertError(t *testing.T, resp *httptest.ResponseRecorder, body map[string]any, status int, code string) {
	t.Helper()
	assert.Equal(t, status, resp.Code, resp.Body.String())
	assert.Equal(t, float64(status), body["status"])
	assert.Equal(t, code, body["errorCode"])
	assert.NotEmpty(t, body["message"])
}

func TestNonceEndpoint(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)

	resp, body := doRequest(t, router, http.MethodGet, "/api/auth/web3/nonce/"+w.address, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Len(t, body["nonce"], 32)
	assert.Equal(t, float64(300), body["expiresIn"])

	message := body["message"].(string)
	for _, marker := range []string{"app.example.com wants you to sign in", "Version: 1", "Nonce: " + body["nonce"].(string)} {
		assert.Contains(t, message, marker)
	}
}

func TestNonceEndpointChainID(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)

	resp, body := doRequest(t, router, http.MethodGet, "/api/auth/web3/nonce/"+w.address+"?chainId=10", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(10), body["chainId"])

	resp, body = doRequest(t, router, http.MethodGet, "/api/auth/web3/nonce/"+w.address+"?chainId=abc", nil, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidRequest)
}

func TestNonceEndpointInvalidAddress(t *testing.T) {
	router := setupTestRouter(t, nil)

	resp, body := doRequest(t, router, http.MethodGet, "/api/auth/web3/nonce/0x1234", nil, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidAddress)
}

func TestInvalidateNonceEndpoint(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)
	req := challenge(t, router, w)

	resp, _ := doRequest(t, router, http.MethodDelete, "/api/auth/web3/nonce/"+w.address, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", req, "")
	assertError(t, resp, body, http.StatusUnauthorized, CodeInvalidSignature)

	resp, body = doRequest(t, router, http.MethodDelete, "/api/auth/web3/nonce/nope", nil, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidAddress)
}

func TestWalletLoginFlow(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)

	// Unknown wallets are reported unbound
	resp, body := doRequest(t, router, http.MethodGet, "/api/auth/web3/status/"+w.address, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, body["isBound"])
	assert.Equal(t, w.address, body["walletAddress"])

	req := challenge(t, router, w)
	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", req, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, true, body["isNewUser"])
	assert.Equal(t, w.address, body["walletAddress"])
	assert.Equal(t, "Bearer", body["tokenType"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.NotEmpty(t, body["userId"])
	userID := body["userId"]
	accessToken := body["accessToken"].(string)

	resp, body = doRequest(t, router, http.MethodGet, "/api/auth/web3/status/"+mixedCase(w.address), nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, body["isBound"])

	// Replaying the same signed challenge fails
	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", req, "")
	assertError(t, resp, body, http.StatusUnauthorized, CodeInvalidSignature)

	// A second login resolves to the same account
	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", challenge(t, router, w), "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, body["isNewUser"])
	assert.Equal(t, userID, body["userId"])

	resp, body = doRequest(t, router, http.MethodGet, "/api/auth/me", nil, accessToken)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID, body["userId"])
	assert.Equal(t, w.address, body["username"])
	assert.Equal(t, w.address, body["walletAddress"])
}

func TestVerifyWrongSigner(t *testing.T) {
	router := setupTestRouter(t, nil)
	owner := newWallet(t)
	attacker := newWallet(t)

	req := challenge(t, router, owner)
	sig, err := eth.SignPersonalMessage(attacker.key, req["message"])
	require.NoError(t, err)
	req["signature"] = sig

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", req, "")
	assertError(t, resp, body, http.StatusUnauthorized, CodeInvalidSignature)

	resp, body = doRequest(t, router, http.MethodGet, "/api/auth/web3/status/"+owner.address, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, body["isBound"])
}

func TestVerifyMalformedInput(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)

	tests := []struct {
		name   string
		field  string
		value  string
		status int
		code   string
	}{
		{"bad address", "walletAddress", "0xnothex", http.StatusBadRequest, CodeInvalidAddress},
		{"bad nonce", "nonce", "xyz", http.StatusBadRequest, CodeInvalidNonce},
		{"bad signature", "signature", "0x1234", http.StatusBadRequest, CodeMalformedSignature},
		{"bad message", "message", "sign here", http.StatusBadRequest, CodeInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := challenge(t, router, w)
			req[tt.field] = tt.value

			resp, body := doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", req, "")
			assertError(t, resp, body, tt.status, tt.code)
		})
	}
}

func TestVerifyInvalidJSON(t *testing.T) {
	router := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/web3/verify", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusInvalidAddress(t *testing.T) {
	router := setupTestRouter(t, nil)
	resp, body := doRequest(t, router, http.MethodGet, "/api/auth/web3/status/zzz", nil, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidAddress)
}

func registerAndLogin(t *testing.T, router *gin.Engine, username string) (string, string) {
	t.Helper()

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username":    username,
		"email":       username + "@example.com",
		"password":    "password123",
		"displayName": strings.ToUpper(username),
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	userID := body["userId"].(string)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": "password123",
	}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, userID, body["userId"])

	return userID, body["accessToken"].(string)
}

func TestBindFlow(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)
	userID, token := registerAndLogin(t, router, "alice")

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/web3/bind", challenge(t, router, w), token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, userID, body["userId"])
	assert.Equal(t, w.address, body["walletAddress"])

	resp, body = doRequest(t, router, http.MethodGet, "/api/auth/web3/wallets", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	wallets := body["wallets"].([]any)
	require.Len(t, wallets, 1)
	assert.Equal(t, w.address, wallets[0].(map[string]any)["walletAddress"])

	// Wallet login now lands on the bound account
	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", challenge(t, router, w), "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID, body["userId"])
	assert.Equal(t, false, body["isNewUser"])
}

func TestBindWalletBoundElsewhere(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)

	_, tokenB := registerAndLogin(t, router, "bob")
	resp, _ := doRequest(t, router, http.MethodPost, "/api/auth/web3/bind", challenge(t, router, w), tokenB)
	require.Equal(t, http.StatusOK, resp.Code)

	_, tokenA := registerAndLogin(t, router, "alice")
	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/web3/bind", challenge(t, router, w), tokenA)
	assertError(t, resp, body, http.StatusConflict, CodeWalletAlreadyBound)
}

func TestBindRequiresAuthentication(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/web3/bind", challenge(t, router, w), "")
	assertError(t, resp, body, http.StatusUnauthorized, CodeUnauthorized)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/web3/bind", challenge(t, router, w), "garbage")
	assertError(t, resp, body, http.StatusUnauthorized, CodeUnauthorized)
}

func TestBindBadSignature(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)
	_, token := registerAndLogin(t, router, "carol")

	req := challenge(t, router, w)
	sig, err := eth.SignPersonalMessage(newWallet(t).key, req["message"])
	require.NoError(t, err)
	req["signature"] = sig

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/web3/bind", req, token)
	assertError(t, resp, body, http.StatusUnauthorized, CodeInvalidSignature)
}

func TestRegisterErrors(t *testing.T) {
	router := setupTestRouter(t, nil)
	registerAndLogin(t, router, "alice")

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "password123",
	}, "")
	assertError(t, resp, body, http.StatusConflict, CodeUsernameTaken)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "dave",
		"email":    "dave@example.com",
		"password": "short",
	}, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidRequest)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "frank",
		"email":    "frank@example.com",
		"password": strings.Repeat("p", 80),
	}, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidRequest)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "erin",
	}, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidRequest)
}

func TestLoginWithQueryParams(t *testing.T) {
	router := setupTestRouter(t, nil)
	userID, _ := registerAndLogin(t, router, "alice")

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/login?username=alice&password=password123", nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, userID, body["userId"])

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/login?username=alice&password=nope", nil, "")
	assertError(t, resp, body, http.StatusUnauthorized, CodeInvalidCredentials)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/login", nil, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidRequest)
}

func TestRefreshAndLogout(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)

	_, login := doRequest(t, router, http.MethodPost, "/api/auth/web3/verify", challenge(t, router, w), "")
	refreshToken := login["refreshToken"].(string)

	resp, body := doRequest(t, router, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": refreshToken}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	newAccess := body["accessToken"].(string)
	newRefresh := body["refreshToken"].(string)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": refreshToken}, "")
	assertError(t, resp, body, http.StatusUnauthorized, CodeTokenInvalidated)

	resp, _ = doRequest(t, router, http.MethodGet, "/api/auth/me", nil, newAccess)
	require.Equal(t, http.StatusOK, resp.Code)

	resp, _ = doRequest(t, router, http.MethodPost, "/api/auth/logout", map[string]string{"refreshToken": newRefresh}, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp, body = doRequest(t, router, http.MethodGet, "/api/auth/me", nil, newAccess)
	assertError(t, resp, body, http.StatusUnauthorized, CodeTokenInvalidated)

	resp, body = doRequest(t, router, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": "garbage"}, "")
	assertError(t, resp, body, http.StatusBadRequest, CodeInvalidToken)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 2})
	defer limiter.Stop()
	router := setupTestRouter(t, limiter)
	w := newWallet(t)

	for i := 0; i < 2; i++ {
		resp, _ := doRequest(t, router, http.MethodGet, "/api/auth/web3/status/"+w.address, nil, "")
		require.Equal(t, http.StatusOK, resp.Code)
	}

	resp, body := doRequest(t, router, http.MethodGet, "/api/auth/web3/status/"+w.address, nil, "")
	assertError(t, resp, body, http.StatusTooManyRequests, CodeRateLimited)

	// Operational endpoints are not limited
	resp, _ = doRequest(t, router, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter(t, nil)
	doRequest(t, router, http.MethodGet, "/healthz", nil, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uniauth_http_requests_total")
}

func TestConcurrentVerifyOverHTTP(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := newWallet(t)
	req := challenge(t, router, w)

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	const workers = 8
	codes := make(chan int, workers)
	for i := 0; i < workers; i++ {
		go func() {
			r := httptest.NewRequest(http.MethodPost, "/api/auth/web3/verify", bytes.NewReader(raw))
			r.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, r)
			codes <- rec.Code
		}()
	}

	ok := 0
	for i := 0; i < workers; i++ {
		if <-codes == http.StatusOK {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

// mixedCase upper-cases the hex digits of an address
func mixedCase(address string) string {
	return "0x" + strings.ToUpper(address[2:])
}
