package wallet

import (
	"context"
	"errors"
	"slices"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/money"
	"payment-platform/pkg/logger"
)

// Repository is the per-transaction persistence contract for balances.
//
// LockBalance must serialize writers of the same (wallet, currency) until the
// surrounding transaction ends, or return the current Version so that
// UpdateBalance can compare-and-swap. UpdateBalance returns ErrVersionConflict
// when the stored version is not b.Version-1.
//
// A transaction that mutates more than one wallet must take every lock up
// front in ascending user id order (see Ledger.LockAll) before mutating any.
type Repository interface {
	LockBalance(ctx context.Context, userID, currency string) (Balance, error)
	UpdateBalance(ctx context.Context, b Balance) error
}

// Reader serves non-mutating wallet queries.
type Reader interface {
	GetWallet(ctx context.Context, userID string) (Wallet, []Balance, error)
}

var (
	// ErrVersionConflict is retried by Ledger; it never reaches callers unwrapped.
	ErrVersionConflict = errors.New("wallet: balance version conflict")

	ErrInsufficientHeld    = &apperr.Error{Code: apperr.CodeConflict, Message: "held funds below requested amount"}
	ErrInsufficientPending = &apperr.Error{Code: apperr.CodeConflict, Message: "pending funds below requested amount"}
	ErrWalletInactive      = &apperr.Error{Code: apperr.CodeValidation, Message: "wallet is inactive"}
)

// Ledger is the only component allowed to mutate balances.
//
// Money invariants:
// - Every check happens inside the same atomic step as its mutation.
// - Balances never go negative.
// - Journal lines for a mutation are written by the caller in the same store transaction.
type Ledger struct {
	// clock is injectable for deterministic tests.
	clock      func() time.Time
	maxRetries int
}

func NewLedger() *Ledger {
	return &Ledger{clock: time.Now, maxRetries: 5}
}

// WithClock replaces the clock (tests).
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// LockAll locks the currency balance of each distinct, non-empty user in
// ascending user id order. Multi-wallet operations call it before their first
// mutation so that two of them never wait on each other's locks.
func (l *Ledger) LockAll(ctx context.Context, repo Repository, currency string, userIDs ...string) error {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, err := repo.LockBalance(ctx, id, currency); err != nil {
			return err
		}
	}
	return nil
}

// CreditAvailable adds amount to available funds.
func (l *Ledger) CreditAvailable(ctx context.Context, repo Repository, userID string, m money.Money, ref string) (Balance, error) {
	return l.mutate(ctx, repo, "credit_available", userID, m, ref, func(b *Balance) error {
		b.Available += m.Amount
		return nil
	})
}

// DebitAvailable removes amount from available funds or fails with InsufficientFunds.
func (l *Ledger) DebitAvailable(ctx context.Context, repo Repository, userID string, m money.Money, ref string) (Balance, error) {
	return l.mutate(ctx, repo, "debit_available", userID, m, ref, func(b *Balance) error {
		if b.Available < m.Amount {
			return apperr.ErrInsufficientFunds
		}
		b.Available -= m.Amount
		return nil
	})
}

// HoldFunds moves amount from available to held.
func (l *Ledger) HoldFunds(ctx context.Context, repo Repository, userID string, m money.Money, holdID, reason string) (Balance, error) {
	return l.mutate(ctx, repo, "hold:"+reason, userID, m, holdID, func(b *Balance) error {
		if b.Available < m.Amount {
			return apperr.ErrInsufficientFunds
		}
		b.Available -= m.Amount
		b.Held += m.Amount
		return nil
	})
}

// ReleaseHeldFunds returns held funds to available.
func (l *Ledger) ReleaseHeldFunds(ctx context.Context, repo Repository, userID string, m money.Money, holdID string) (Balance, error) {
	return l.mutate(ctx, repo, "release", userID, m, holdID, func(b *Balance) error {
		if b.Held < m.Amount {
			return ErrInsufficientHeld
		}
		b.Held -= m.Amount
		b.Available += m.Amount
		return nil
	})
}

// CaptureHeldFunds consumes held funds; the caller credits the counterparty.
// Distinct from ReleaseHeldFunds: captured funds never return to available.
func (l *Ledger) CaptureHeldFunds(ctx context.Context, repo Repository, userID string, m money.Money, holdID string) (Balance, error) {
	return l.mutate(ctx, repo, "capture", userID, m, holdID, func(b *Balance) error {
		if b.Held < m.Amount {
			return ErrInsufficientHeld
		}
		b.Held -= m.Amount
		return nil
	})
}

// AddPending stages funds awaiting external settlement.
func (l *Ledger) AddPending(ctx context.Context, repo Repository, userID string, m money.Money, ref string) (Balance, error) {
	return l.mutate(ctx, repo, "add_pending", userID, m, ref, func(b *Balance) error {
		b.Pending += m.Amount
		return nil
	})
}

// ConfirmPending makes previously staged funds available.
func (l *Ledger) ConfirmPending(ctx context.Context, repo Repository, userID string, m money.Money, ref string) (Balance, error) {
	return l.mutate(ctx, repo, "confirm_pending", userID, m, ref, func(b *Balance) error {
		if b.Pending < m.Amount {
			return ErrInsufficientPending
		}
		b.Pending -= m.Amount
		b.Available += m.Amount
		return nil
	})
}

// CancelPending drops staged funds that will never settle.
func (l *Ledger) CancelPending(ctx context.Context, repo Repository, userID string, m money.Money, ref string) (Balance, error) {
	return l.mutate(ctx, repo, "cancel_pending", userID, m, ref, func(b *Balance) error {
		if b.Pending < m.Amount {
			return ErrInsufficientPending
		}
		b.Pending -= m.Amount
		return nil
	})
}

// HasSufficientBalance is advisory only. Never use it as the gate before a
// mutating call; DebitAvailable and HoldFunds perform the authoritative check.
func HasSufficientBalance(ctx context.Context, r Reader, userID string, m money.Money) (bool, error) {
	_, balances, err := r.GetWallet(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, b := range balances {
		if b.Currency == m.Currency {
			return b.Available >= m.Amount, nil
		}
	}
	return false, nil
}

func (l *Ledger) mutate(ctx context.Context, repo Repository, op, userID string, m money.Money, ref string, apply func(*Balance) error) (Balance, error) {
	if userID == "" || m.Currency == "" || m.Amount <= 0 {
		return Balance{}, apperr.Validation("wallet: user, currency and positive amount are required")
	}

	for attempt := 0; ; attempt++ {
		cur, err := repo.LockBalance(ctx, userID, m.Currency)
		if err != nil {
			return Balance{}, err
		}

		next := cur
		if err := apply(&next); err != nil {
			return cur, err
		}
		if !next.valid() {
			return cur, apperr.ErrInsufficientFunds
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = l.clock().UTC()

		err = repo.UpdateBalance(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			if attempt < l.maxRetries {
				continue
			}
			return Balance{}, apperr.Wrap(apperr.CodeConflict, err, "wallet: too many concurrent updates")
		}
		if err != nil {
			return Balance{}, err
		}

		logger.From(ctx).Debug("wallet balance mutated",
			"op", op,
			"user_id", userID,
			"currency", m.Currency,
			"amount", m.Amount,
			"ref", ref,
			"version", next.Version,
		)
		return next, nil
	}
}
