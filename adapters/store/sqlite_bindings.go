package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wubuku/UniAuth/core"
)

// GetBinding returns the binding for a wallet
func (s *SQLiteStore) GetBinding(ctx context.Context, address string) (core.WalletBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wallet_address, account_id, chain_id, bound_at, metadata_json
		FROM wallet_bindings WHERE wallet_address = ?
	`, address)

	b, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.WalletBinding{}, core.ErrBindingNotFound
	}
	if err != nil {
		return core.WalletBinding{}, fmt.Errorf("reading binding: %w", err)
	}
	return b, nil
}

// InsertBinding inserts the binding; the primary key on wallet_address makes
// a second insert for the same wallet fail
func (s *SQLiteStore) InsertBinding(ctx context.Context, binding core.WalletBinding) error {
	var metadata sql.NullString
	if len(binding.Metadata) > 0 {
		raw, err := json.Marshal(binding.Metadata)
		if err != nil {
			return fmt.Errorf("encoding binding metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_bindings (wallet_address, account_id, chain_id, bound_at, metadata_json)
		VALUES (?, ?, ?, ?, ?)
	`, binding.WalletAddress, binding.AccountID, binding.ChainID, formatTime(binding.BoundAt), metadata)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrWalletAlreadyBound
		}
		return fmt.Errorf("inserting binding: %w", err)
	}

	s.logger.Debug().
		Str("wallet", binding.WalletAddress).
		Str("account_id", binding.AccountID).
		Msg("inserted wallet binding")
	return nil
}

// ListBindings returns the wallets bound to an account, oldest first
func (s *SQLiteStore) ListBindings(ctx context.Context, accountID string) ([]core.WalletBinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_address, account_id, chain_id, bound_at, metadata_json
		FROM wallet_bindings WHERE account_id = ?
		ORDER BY bound_at ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing bindings: %w", err)
	}
	defer rows.Close()

	var out []core.WalletBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateAccount inserts a new account; the username column is unique
// regardless of case
func (s *SQLiteStore) CreateAccount(ctx context.Context, account core.Account) error {
	if err := s.insertAccount(ctx, account); err != nil {
		if isUniqueViolation(err) {
			return core.ErrUsernameTaken
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// GetAccount returns an account by id
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.queryAccount(ctx, `WHERE id = ?`, id)
}

// GetAccountByUsername returns an account by case-insensitive username
func (s *SQLiteStore) GetAccountByUsername(ctx context.Context, username string) (core.Account, error) {
	return s.queryAccount(ctx, `WHERE username = ?`, username)
}

// EnsureWalletAccount creates the account if missing, otherwise records a login
func (s *SQLiteStore) EnsureWalletAccount(ctx context.Context, account core.Account) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, email, display_name, password_hash, provider, created_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		account.ID,
		account.Username,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		string(account.Provider),
		formatTime(account.CreatedAt),
		formatTime(account.LastLoginAt),
	)
	if err != nil {
		return fmt.Errorf("ensuring wallet account: %w", err)
	}

	if created, _ := res.RowsAffected(); created == 0 {
		return s.TouchLogin(ctx, account.ID, account.LastLoginAt)
	}
	return nil
}

// TouchLogin records the last login time of an account
func (s *SQLiteStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_login_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

func (s *SQLiteStore) insertAccount(ctx context.Context, account core.Account) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO accounts
		(id, username, email, display_name, password_hash, provider, created_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		account.ID,
		account.Username,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		string(account.Provider),
		formatTime(account.CreatedAt),
		formatTime(account.LastLoginAt),
	)
	return err
}

func (s *SQLiteStore) queryAccount(ctx context.Context, where string, arg any) (core.Account, error) {
	var (
		a                   core.Account
		provider, createdAt string
		lastLoginAt         sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, display_name, password_hash, provider, created_at, last_login_at
		FROM accounts `+where, arg,
	).Scan(&a.ID, &a.Username, &a.Email, &a.DisplayName, &a.PasswordHash, &provider, &createdAt, &lastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("reading account: %w", err)
	}

	a.Provider = core.AuthProvider(provider)
	a.CreatedAt = parseTime(createdAt)
	if lastLoginAt.Valid {
		a.LastLoginAt = parseTime(lastLoginAt.String)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (core.WalletBinding, error) {
	var (
		b        core.WalletBinding
		boundAt  string
		metadata sql.NullString
	)

	if err := row.Scan(&b.WalletAddress, &b.AccountID, &b.ChainID, &boundAt, &metadata); err != nil {
		return core.WalletBinding{}, err
	}

	b.BoundAt = parseTime(boundAt)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &b.Metadata); err != nil {
			return core.WalletBinding{}, fmt.Errorf("decoding binding metadata: %w", err)
		}
	}
	return b, nil
}
