// Package config loads service configuration from an optional YAML file
// overlaid by UNIAUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Web3      Web3Config      `yaml:"web3" envPrefix:"WEB3_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Password  PasswordConfig  `yaml:"password" envPrefix:"PASSWORD_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"EVENTS_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type StorageConfig struct {
	Driver        string        `yaml:"driver" env:"DRIVER"`
	RedisURL      string        `yaml:"redis_url" env:"REDIS_URL"`
	SQLitePath    string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// NonceRetention keeps expired nonces around so late replays are still
	// reported as consumed or expired rather than unknown
	NonceRetention time.Duration `yaml:"nonce_retention" env:"NONCE_RETENTION"`
}

type Web3Config struct {
	Domain         string        `yaml:"domain" env:"DOMAIN"`
	URI            string        `yaml:"uri" env:"URI"`
	Statement      string        `yaml:"statement" env:"STATEMENT"`
	DefaultChainID int64         `yaml:"default_chain_id" env:"DEFAULT_CHAIN_ID"`
	NonceTTL       time.Duration `yaml:"nonce_ttl" env:"NONCE_TTL"`
}

type SessionConfig struct {
	Issuer     string        `yaml:"issuer" env:"ISSUER"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL"`
	// KeyFile is a PEM encoded ECDSA P-256 private key. Empty means a key is
	// generated at startup and sessions do not survive a restart.
	KeyFile string `yaml:"key_file" env:"KEY_FILE"`
}

type PasswordConfig struct {
	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
}

type EventsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" env:"ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	Burst             int  `yaml:"burst" env:"BURST"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:         DriverMemory,
			RedisURL:       "redis://localhost:6379/0",
			SQLitePath:     "data/uniauth.db",
			SweepInterval:  time.Minute,
			NonceRetention: 10 * time.Minute,
		},
		Web3: Web3Config{
			Domain:         "localhost",
			DefaultChainID: 1,
			NonceTTL:       5 * time.Minute,
		},
		Session: SessionConfig{
			Issuer:     "uniauth",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			BcryptCost: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			Burst:             20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path (a missing file is not an error), then
// applies environment overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "UNIAUTH_"}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required for the redis driver"))
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Web3.Domain == "" {
		errs = append(errs, errors.New("web3.domain is required"))
	}
	if c.Web3.NonceTTL <= 0 {
		errs = append(errs, errors.New("web3.nonce_ttl must be positive"))
	}
	if c.Web3.DefaultChainID <= 0 {
		errs = append(errs, errors.New("web3.default_chain_id must be positive"))
	}
	if c.Session.AccessTTL <= 0 || c.Session.RefreshTTL <= 0 {
		errs = append(errs, errors.New("session ttls must be positive"))
	}
	if c.Session.AccessTTL > c.Session.RefreshTTL {
		errs = append(errs, errors.New("session.access_ttl must not exceed session.refresh_ttl"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit requires positive requests_per_minute and burst"))
	}
	if c.Storage.SweepInterval < 0 || c.Storage.NonceRetention < 0 {
		errs = append(errs, errors.New("storage sweep settings must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
