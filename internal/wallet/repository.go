package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/pkg/utils"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following tables exist:
// - wallets (UNIQUE user_id)
// - wallet_balances (PRIMARY KEY wallet_id, currency; CHECK columns >= 0)

// SQLRepository implements Repository and Reader over Postgres.
// Bind it to a *sql.Tx for mutations so the row locks live as long as the transaction.
type SQLRepository struct {
	q utils.Querier
}

func NewSQLRepository(q utils.Querier) *SQLRepository {
	return &SQLRepository{q: q}
}

func (r *SQLRepository) LockBalance(ctx context.Context, userID, currency string) (Balance, error) {
	now := time.Now().UTC()

	const ensureWallet = `
INSERT INTO wallets (id, user_id, is_active, version, created_at, updated_at)
VALUES ($1, $2, TRUE, 0, $3, $3)
ON CONFLICT (user_id) DO NOTHING
`
	if _, err := r.q.ExecContext(ctx, ensureWallet, uuid.NewString(), userID, now); err != nil {
		return Balance{}, err
	}

	const ensureBalance = `
INSERT INTO wallet_balances (wallet_id, currency, available, held, pending, version, updated_at)
SELECT id, $2, 0, 0, 0, 0, $3 FROM wallets WHERE user_id = $1
ON CONFLICT (wallet_id, currency) DO NOTHING
`
	if _, err := r.q.ExecContext(ctx, ensureBalance, userID, currency, now); err != nil {
		return Balance{}, err
	}

	// Lock the balance row to serialize concurrent money operations per (wallet, currency),
	// and the wallet row that UpdateBalance bumps, so both are taken in the caller's order.
	const q = `
SELECT b.wallet_id, w.user_id, b.currency, b.available, b.held, b.pending, b.version, b.updated_at, w.is_active
FROM wallet_balances b
JOIN wallets w ON w.id = b.wallet_id
WHERE w.user_id = $1 AND b.currency = $2
FOR UPDATE OF b, w
`
	var (
		b      Balance
		active bool
	)
	if err := r.q.QueryRowContext(ctx, q, userID, currency).Scan(
		&b.WalletID,
		&b.UserID,
		&b.Currency,
		&b.Available,
		&b.Held,
		&b.Pending,
		&b.Version,
		&b.UpdatedAt,
		&active,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, apperr.New(apperr.CodeNotFound, "wallet balance not found")
		}
		return Balance{}, err
	}
	if !active {
		return Balance{}, ErrWalletInactive
	}
	return b, nil
}

func (r *SQLRepository) UpdateBalance(ctx context.Context, b Balance) error {
	const q = `
UPDATE wallet_balances
SET available = $3, held = $4, pending = $5, version = $6, updated_at = $7
WHERE wallet_id = $1 AND currency = $2 AND version = $6 - 1
`
	res, err := r.q.ExecContext(ctx, q, b.WalletID, b.Currency, b.Available, b.Held, b.Pending, b.Version, b.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}

	const bump = `UPDATE wallets SET version = version + 1, updated_at = $2 WHERE id = $1`
	_, err = r.q.ExecContext(ctx, bump, b.WalletID, b.UpdatedAt)
	return err
}

func (r *SQLRepository) GetWallet(ctx context.Context, userID string) (Wallet, []Balance, error) {
	const qw = `
SELECT id, user_id, is_active, version, created_at, updated_at
FROM wallets
WHERE user_id = $1
`
	var w Wallet
	if err := r.q.QueryRowContext(ctx, qw, userID).Scan(
		&w.ID,
		&w.UserID,
		&w.IsActive,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, nil, apperr.New(apperr.CodeNotFound, "wallet not found")
		}
		return Wallet{}, nil, err
	}

	const qb = `
SELECT wallet_id, currency, available, held, pending, version, updated_at
FROM wallet_balances
WHERE wallet_id = $1
ORDER BY currency
`
	rows, err := r.q.QueryContext(ctx, qb, w.ID)
	if err != nil {
		return Wallet{}, nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		b := Balance{UserID: w.UserID}
		if err := rows.Scan(&b.WalletID, &b.Currency, &b.Available, &b.Held, &b.Pending, &b.Version, &b.UpdatedAt); err != nil {
			return Wallet{}, nil, err
		}
		out = append(out, b)
	}
	return w, out, rows.Err()
}
