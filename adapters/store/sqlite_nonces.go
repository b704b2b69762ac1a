package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wubuku/UniAuth/core"
)

// Save upserts the wallet's nonce row, clearing any consumption mark
func (s *SQLiteStore) Save(ctx context.Context, nonce core.Nonce) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO web3_nonces (wallet_address, nonce, chain_id, message, issued_at, expires_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(wallet_address) DO UPDATE SET
			nonce = excluded.nonce,
			chain_id = excluded.chain_id,
			message = excluded.message,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at,
			consumed_at = NULL
	`,
		nonce.WalletAddress,
		nonce.Value,
		nonce.ChainID,
		nonce.Message,
		nonce.IssuedAt.UnixMilli(),
		nonce.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving nonce: %w", err)
	}

	s.logger.Debug().Str("wallet", nonce.WalletAddress).Msg("saved nonce")
	return nil
}

// Get returns the nonce stored for a wallet
func (s *SQLiteStore) Get(ctx context.Context, address string) (core.Nonce, error) {
	return readNonce(ctx, s.db, address)
}

// ConsumeIfValid marks the nonce consumed in a transaction. The conditional
// UPDATE only matches an unconsumed, unexpired row with the expected value,
// so exactly one concurrent caller sees an affected row.
func (s *SQLiteStore) ConsumeIfValid(ctx context.Context, address, value string, now time.Time) (core.Nonce, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Nonce{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE web3_nonces SET consumed_at = ?
		WHERE wallet_address = ? AND nonce = ? AND consumed_at IS NULL AND expires_at > ?
	`, now.UnixMilli(), address, value, now.UnixMilli())
	if err != nil {
		return core.Nonce{}, fmt.Errorf("consuming nonce: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return core.Nonce{}, fmt.Errorf("getting rows affected: %w", err)
	}

	n, err := readNonce(ctx, tx, address)
	if err != nil {
		return core.Nonce{}, err
	}

	if affected != 1 {
		// Classify from the row as it is now
		if err := checkConsumable(n, value, now); err != nil {
			return core.Nonce{}, err
		}
		return core.Nonce{}, core.ErrNonceAlreadyConsumed
	}

	if err := tx.Commit(); err != nil {
		return core.Nonce{}, fmt.Errorf("committing nonce consumption: %w", err)
	}
	return n, nil
}

// Invalidate deletes the wallet's nonce
func (s *SQLiteStore) Invalidate(ctx context.Context, address string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM web3_nonces WHERE wallet_address = ?`, address); err != nil {
		return fmt.Errorf("deleting nonce: %w", err)
	}
	return nil
}

// Sweep deletes nonces that expired before the cutoff, and stale token
// invalidation records
func (s *SQLiteStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM web3_nonces WHERE expires_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweeping nonces: %w", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM invalidated_tokens WHERE expires_at < ?`, time.Now().UnixMilli()); err != nil {
		return int(removed), fmt.Errorf("sweeping invalidated tokens: %w", err)
	}
	return int(removed), nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readNonce(ctx context.Context, q queryRower, address string) (core.Nonce, error) {
	var (
		n                   core.Nonce
		issuedAt, expiresAt int64
		consumedAt          sql.NullInt64
	)

	err := q.QueryRowContext(ctx, `
		SELECT wallet_address, nonce, chain_id, message, issued_at, expires_at, consumed_at
		FROM web3_nonces WHERE wallet_address = ?
	`, address).Scan(&n.WalletAddress, &n.Value, &n.ChainID, &n.Message, &issuedAt, &expiresAt, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Nonce{}, core.ErrNonceNotFound
	}
	if err != nil {
		return core.Nonce{}, fmt.Errorf("reading nonce: %w", err)
	}

	n.IssuedAt = time.UnixMilli(issuedAt).UTC()
	n.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if consumedAt.Valid {
		at := time.UnixMilli(consumedAt.Int64).UTC()
		n.ConsumedAt = &at
	}
	return n, nil
}
