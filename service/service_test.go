package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wubuku/UniAuth/adapters/password"
	"github.com/wubuku/UniAuth/adapters/store"
	"github.com/wubuku/UniAuth/adapters/tokenizer"
	"github.com/wubuku/UniAuth/internal/eth"
	"github.com/wubuku/UniAuth/internal/siwe"
	"github.com/wubuku/UniAuth/ports"
	"golang.org/x/crypto/bcrypt"
)

const testDomain = "app.example.com"

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher remembers published events
type recordingPublisher struct {
	mu      sync.Mutex
	logins  []loginEvent
	bounds  []string
	logouts []string
}

type loginEvent struct {
	address, accountID string
	isNew              bool
}

func (p *recordingPublisher) PublishLogin(_ context.Context, address, accountID string, isNew bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins = append(p.logins, loginEvent{address, accountID, isNew})
	return nil
}

func (p *recordingPublisher) PublishBound(_ context.Context, address, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bounds = append(p.bounds, address)
	return nil
}

func (p *recordingPublisher) PublishLogout(_ context.Context, accountID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, accountID)
	return nil
}

// backend is a store implementing every storage port
type backend interface {
	ports.Store
	ports.NonceStore
	ports.BindingStore
	ports.AccountStore
}

type testEnv struct {
	store    backend
	clock    *fakeClock
	events   *recordingPublisher
	auth     *AuthService
	accounts *AccountService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return setupTestEnvWith(t, store.NewMemoryStore())
}

func setupTestEnvWith(t *testing.T, mem backend) *testEnv {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	clock := newFakeClock()
	events := &recordingPublisher{}

	auth := NewAuthService(
		tokenizer.NewJWTTokenizer(signKey, ""),
		Stores{Revocations: mem, Nonces: mem, Bindings: mem, Accounts: mem},
		events,
		siwe.NewComposer(testDomain, "", ""),
		Config{Clock: clock.Now},
		zerolog.Nop(),
	)

	return &testEnv{
		store:    mem,
		clock:    clock,
		events:   events,
		auth:     auth,
		accounts: NewAccountService(mem, password.NewBcryptHasher(bcrypt.MinCost), auth, zerolog.Nop()),
	}
}

// testWallet is a wallet owner able to sign challenges
type testWallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testWallet{key: key, address: eth.AddressOf(key)}
}

func (w testWallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := eth.SignPersonalMessage(w.key, message)
	require.NoError(t, err)
	return sig
}

// signedChallenge requests a challenge for w and signs it
func (e *testEnv) signedChallenge(t *testing.T, w testWallet) VerifyRequest {
	t.Helper()
	nonce, err := e.auth.IssueChallenge(context.Background(), w.address, 0)
	require.NoError(t, err)
	return VerifyRequest{
		WalletAddress: w.address,
		Message:       nonce.Message,
		Signature:     w.sign(t, nonce.Message),
		Nonce:         nonce.Value,
	}
}
