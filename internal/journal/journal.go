package journal

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"

	"github.com/oklog/ulid/v2"
)

// Repository is the persistence contract for journal entries.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	InsertEntries(ctx context.Context, entries []Entry) error
	ListEntries(ctx context.Context, accountID, currency string, asOf time.Time) ([]Entry, error)
}

// Line is an unsigned journal line awaiting commit.
type Line struct {
	Kind        Kind
	Side        Side
	Amount      int64
	Currency    string
	AccountID   string
	PaymentID   string
	ReferenceID string
	Metadata    attrs.Map
}

// Journal validates, signs and appends balanced transactions.
// It holds no lock of its own; atomicity comes from the caller's store transaction.
type Journal struct {
	signer *Signer
	clock  func() time.Time
}

func New(signer *Signer) *Journal {
	return &Journal{signer: signer, clock: time.Now}
}

// WithClock replaces the clock (tests).
func (j *Journal) WithClock(clock func() time.Time) *Journal {
	j.clock = clock
	return j
}

// Record commits lines as one transaction under a fresh correlation id.
// requestID ties the entries to the request that caused them; many
// transactions may share it. An unbalanced or malformed group is rejected
// entirely; nothing is written.
func (j *Journal) Record(ctx context.Context, repo Repository, requestID string, lines []Line) (Transaction, error) {
	if err := Validate(lines); err != nil {
		return Transaction{}, err
	}

	// Postgres stores microseconds; truncate so signatures survive a round trip.
	now := j.clock().UTC().Truncate(time.Microsecond)
	entropy := ulid.Monotonic(rand.Reader, 0)
	correlationID := ulid.MustNew(ulid.Timestamp(now), entropy).String()

	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		e := Entry{
			ID:            ulid.MustNew(ulid.Timestamp(now), entropy).String(),
			Kind:          l.Kind,
			Side:          l.Side,
			Amount:        l.Amount,
			Currency:      l.Currency,
			AccountID:     l.AccountID,
			PaymentID:     l.PaymentID,
			ReferenceID:   l.ReferenceID,
			Timestamp:     now,
			Metadata:      l.Metadata.Clone(),
			Version:       1,
			CorrelationID: correlationID,
			RequestID:     requestID,
		}
		sig, err := j.signer.Sign(e)
		if err != nil {
			return Transaction{}, fmt.Errorf("journal: sign entry: %w", err)
		}
		e.Signature = sig
		entries = append(entries, e)
	}

	if err := repo.InsertEntries(ctx, entries); err != nil {
		return Transaction{}, err
	}
	return Transaction{CorrelationID: correlationID, RequestID: requestID, Entries: entries, CommittedAt: now}, nil
}

// Validate checks shape and the double-entry invariant per currency.
func Validate(lines []Line) error {
	if len(lines) < 2 {
		return apperr.Validation("journal: a transaction needs at least two lines")
	}
	debits := map[string]int64{}
	credits := map[string]int64{}
	for i, l := range lines {
		if !l.Kind.Valid() {
			return apperr.Validation("journal: line %d has invalid kind %q", i, l.Kind)
		}
		if l.Amount <= 0 {
			return apperr.Validation("journal: line %d amount must be positive", i)
		}
		if l.AccountID == "" || l.Currency == "" {
			return apperr.Validation("journal: line %d requires account and currency", i)
		}
		switch l.Side {
		case SideDebit:
			if l.Kind == KindCredit {
				return apperr.Validation("journal: line %d credit kind on debit side", i)
			}
			debits[l.Currency] += l.Amount
		case SideCredit:
			if l.Kind == KindDebit {
				return apperr.Validation("journal: line %d debit kind on credit side", i)
			}
			credits[l.Currency] += l.Amount
		default:
			return apperr.Validation("journal: line %d has invalid side %q", i, l.Side)
		}
	}
	for cur, d := range debits {
		if credits[cur] != d {
			return &apperr.Error{Code: apperr.CodeUnbalancedTransaction, Message: fmt.Sprintf("journal: %s debits %d != credits %d", cur, d, credits[cur])}
		}
	}
	for cur, c := range credits {
		if _, ok := debits[cur]; !ok {
			return &apperr.Error{Code: apperr.CodeUnbalancedTransaction, Message: fmt.Sprintf("journal: %s credits %d without debits", cur, c)}
		}
	}
	return nil
}

// Verify reports whether e's signature matches its content.
func (j *Journal) Verify(e Entry) bool { return j.signer.Verify(e) }

// VerifyAccount returns the ids of entries on the account whose signatures do not match.
func (j *Journal) VerifyAccount(ctx context.Context, repo Repository, accountID, currency string) ([]string, error) {
	entries, err := repo.ListEntries(ctx, accountID, currency, j.clock().UTC())
	if err != nil {
		return nil, err
	}
	var bad []string
	for _, e := range entries {
		if !j.signer.Verify(e) {
			bad = append(bad, e.ID)
		}
	}
	return bad, nil
}

// Balance derives available/held/total for an account from entries up to asOf.
// A zero asOf means now.
func (j *Journal) Balance(ctx context.Context, repo Repository, accountID, currency string, asOf time.Time) (AccountBalance, error) {
	if accountID == "" || currency == "" {
		return AccountBalance{}, apperr.Validation("journal: account and currency are required")
	}
	if asOf.IsZero() {
		asOf = j.clock().UTC()
	}
	entries, err := repo.ListEntries(ctx, accountID, currency, asOf)
	if err != nil {
		return AccountBalance{}, err
	}
	b := Aggregate(entries)
	b.AccountID = accountID
	b.Currency = currency
	b.AsOf = asOf
	return b, nil
}

// Aggregate folds entries into a balance.
func Aggregate(entries []Entry) AccountBalance {
	var b AccountBalance
	for _, e := range entries {
		switch e.Kind {
		case KindHold:
			if e.Side == SideDebit {
				b.Available -= e.Amount
			} else {
				b.Held += e.Amount
			}
		case KindRelease:
			if e.Side == SideDebit {
				b.Held -= e.Amount
			} else {
				b.Available += e.Amount
			}
		default:
			if e.Side == SideDebit {
				b.Available -= e.Amount
			} else {
				b.Available += e.Amount
			}
		}
	}
	b.Total = b.Available + b.Held
	return b
}
