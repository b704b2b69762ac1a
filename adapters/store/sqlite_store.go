package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wubuku/UniAuth/ports"

	_ "modernc.org/sqlite"
)

var (
	_ ports.Store        = (*SQLiteStore)(nil)
	_ ports.NonceStore   = (*SQLiteStore)(nil)
	_ ports.BindingStore = (*SQLiteStore)(nil)
	_ ports.AccountStore = (*SQLiteStore)(nil)
	_ ports.Sweeper      = (*SQLiteStore)(nil)
)

// SQLiteStore implements the storage ports on SQLite. Uniqueness of wallet
// bindings and usernames is enforced by the schema, and nonce consumption is a
// conditional UPDATE whose affected row count decides the single winner.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	logger = logger.With().Str("component", "store").Logger()

	// Ensure parent directory exists
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY between
	// pooled connections and keeps transactions serialized
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("SQLite store initialized")
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
			email         TEXT NOT NULL,
			display_name  TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			last_login_at TEXT,

			CHECK (provider IN ('local', 'web3'))
		);

		CREATE TABLE IF NOT EXISTS wallet_bindings (
			wallet_address TEXT PRIMARY KEY,
			account_id     TEXT NOT NULL,
			chain_id       INTEGER NOT NULL,
			bound_at       TEXT NOT NULL,
			metadata_json  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_wallet_bindings_account
			ON wallet_bindings(account_id);

		CREATE TABLE IF NOT EXISTS web3_nonces (
			wallet_address TEXT PRIMARY KEY,
			nonce          TEXT NOT NULL,
			chain_id       INTEGER NOT NULL,
			message        TEXT NOT NULL,
			issued_at      INTEGER NOT NULL,
			expires_at     INTEGER NOT NULL,
			consumed_at    INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_web3_nonces_expires
			ON web3_nonces(expires_at);

		CREATE TABLE IF NOT EXISTS invalidated_tokens (
			token_id   TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InvalidateToken marks a token as invalidated
func (s *SQLiteStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invalidated_tokens (token_id, expires_at) VALUES (?, ?)
		ON CONFLICT(token_id) DO UPDATE SET expires_at = excluded.expires_at
	`, tokenID, time.Now().Add(expiry).UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *SQLiteStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invalidated_tokens WHERE token_id = ? AND expires_at > ?`,
		tokenID, time.Now().UnixMilli(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return n > 0, nil
}

// isUniqueViolation checks if the error is a unique constraint violation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed: UNIQUE")
}

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
