package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wubuku/UniAuth/adapters/store"
	"github.com/wubuku/UniAuth/core"
)

// forEachBackend runs fn against a service wired to each storage backend
func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	backends := []struct {
		name string
		open func(t *testing.T) backend
	}{
		{"memory", func(t *testing.T) backend { return store.NewMemoryStore() }},
		{"redis", func(t *testing.T) backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return store.NewRedisStore(client)
		}},
		{"sqlite", func(t *testing.T) backend {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "uniauth.db"), zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, setupTestEnvWith(t, b.open(t)))
		})
	}
}

func TestVerifyLifecycleOnEveryBackend(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		w := newTestWallet(t)

		req := env.signedChallenge(t, w)
		first, err := env.auth.Verify(ctx, req)
		require.NoError(t, err)
		require.True(t, first.Verified(), first.Reason.String())
		assert.True(t, first.IsNewUser)

		replay, err := env.auth.Verify(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, core.ReasonNonceAlreadyConsumed, replay.Reason)

		second, err := env.auth.Verify(ctx, env.signedChallenge(t, w))
		require.NoError(t, err)
		require.True(t, second.Verified(), second.Reason.String())
		assert.False(t, second.IsNewUser)
		assert.Equal(t, first.AccountID, second.AccountID)

		account, err := env.accounts.GetAccount(ctx, first.AccountID)
		require.NoError(t, err)
		assert.Equal(t, w.address, account.Username)
	})
}

func TestConcurrentLoginsToOneAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		account, err := env.accounts.Register(ctx, RegisterRequest{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "password123",
		})
		require.NoError(t, err)

		// Several wallets on one account, each with its own pending challenge
		const wallets = 8
		requests := make([]VerifyRequest, wallets)
		for i := range requests {
			w := newTestWallet(t)
			result, err := env.auth.Bind(ctx, account.ID, env.signedChallenge(t, w))
			require.NoError(t, err)
			require.True(t, result.Verified(), result.Reason.String())
			requests[i] = env.signedChallenge(t, w)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 2*wallets)
		for _, req := range requests {
			wg.Add(2)
			go func(req VerifyRequest) {
				defer wg.Done()
				result, err := env.auth.Verify(ctx, req)
				switch {
				case err != nil:
					errs <- err
				case !result.Verified():
					errs <- fmt.Errorf("rejected: %s", result.Reason)
				case result.AccountID != account.ID:
					errs <- fmt.Errorf("resolved to %s", result.AccountID)
				}
			}(req)
			go func() {
				defer wg.Done()
				if _, _, err := env.accounts.Login(ctx, "alice", "password123"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
	})
}
