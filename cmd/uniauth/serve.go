package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wubuku/UniAuth/adapters/events"
	"github.com/wubuku/UniAuth/adapters/password"
	"github.com/wubuku/UniAuth/adapters/store"
	"github.com/wubuku/UniAuth/adapters/tokenizer"
	"github.com/wubuku/UniAuth/internal/config"
	"github.com/wubuku/UniAuth/internal/logger"
	"github.com/wubuku/UniAuth/internal/ratelimit"
	"github.com/wubuku/UniAuth/internal/siwe"
	"github.com/wubuku/UniAuth/ports"
	"github.com/wubuku/UniAuth/service"
	transport "github.com/wubuku/UniAuth/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

// backend is the storage selected by configuration
type backend struct {
	stores  service.Stores
	sweeper ports.Sweeper
	redis   *redis.Client
	close   func() error
}

func openBackend(cfg *config.Config, log zerolog.Logger) (*backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		s := store.NewMemoryStore()
		return &backend{
			stores:  service.Stores{Revocations: s, Nonces: s, Bindings: s, Accounts: s},
			sweeper: s,
			close:   func() error { return nil },
		}, nil

	case config.DriverRedis:
		client, err := newRedisClient(cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		s := store.NewRedisStore(client).WithRetention(cfg.Storage.NonceRetention)
		return &backend{
			stores: service.Stores{Revocations: s, Nonces: s, Bindings: s, Accounts: s},
			redis:  client,
			close:  client.Close,
		}, nil

	case config.DriverSQLite:
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath, logger.Component(log, "sqlite"))
		if err != nil {
			return nil, err
		}
		return &backend{
			stores:  service.Stores{Revocations: s, Nonces: s, Bindings: s, Accounts: s},
			sweeper: s,
			close:   s.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// newEventPublisher streams events to Redis when enabled. The returned
// cleanup closes whatever the publisher opened.
func newEventPublisher(cfg *config.Config, b *backend, log zerolog.Logger) (ports.EventPublisher, func() error, error) {
	if !cfg.Events.Enabled {
		return events.NoopPublisher{}, func() error { return nil }, nil
	}

	client := b.redis
	closeClient := func() error { return nil }
	if client == nil {
		var err error
		if client, err = newRedisClient(cfg.Storage.RedisURL); err != nil {
			return nil, nil, err
		}
		closeClient = client.Close
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		logger.NewWatermillAdapter(log),
	)
	if err != nil {
		_ = closeClient()
		return nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}

	return events.NewWatermillPublisher(publisher), func() error {
		return errors.Join(publisher.Close(), closeClient())
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	signKey, err := loadSigningKey(cfg.Session.KeyFile)
	if err != nil {
		return err
	}
	if cfg.Session.KeyFile == "" {
		log.Warn().Msg("no session key file configured, using an ephemeral key")
	}

	b, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	eventPub, closeEvents, err := newEventPublisher(cfg, b, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEvents(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signKey, cfg.Session.Issuer),
		b.stores,
		eventPub,
		siwe.NewComposer(cfg.Web3.Domain, cfg.Web3.URI, cfg.Web3.Statement),
		service.Config{
			NonceTTL:       cfg.Web3.NonceTTL,
			AccessTTL:      cfg.Session.AccessTTL,
			RefreshTTL:     cfg.Session.RefreshTTL,
			DefaultChainID: cfg.Web3.DefaultChainID,
		},
		log,
	)
	accountService := service.NewAccountService(
		b.stores.Accounts,
		password.NewBcryptHasher(cfg.Password.BcryptCost),
		authService,
		log,
	)

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	if b.sweeper != nil && cfg.Storage.SweepInterval > 0 {
		sweeper := service.NewSweeper(b.sweeper, cfg.Storage.SweepInterval, cfg.Storage.NonceRetention, log)
		go sweeper.Run(ctx)
	}

	if log.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: transport.SetupRouter(authService, accountService, limiter, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("storage", cfg.Storage.Driver).
			Str("domain", cfg.Web3.Domain).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
