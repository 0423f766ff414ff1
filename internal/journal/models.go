package journal

import (
	"strings"
	"time"

	"payment-platform/internal/attrs"
)

// Kind categorizes a journal line. Keep stable; persisted.
type Kind string

const (
	KindDebit      Kind = "debit"
	KindCredit     Kind = "credit"
	KindHold       Kind = "hold"
	KindRelease    Kind = "release"
	KindReversal   Kind = "reversal"
	KindAdjustment Kind = "adjustment"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDebit, KindCredit, KindHold, KindRelease, KindReversal, KindAdjustment:
		return true
	}
	return false
}

// Side is the double-entry side of a line.
// Debit and Credit kinds are pinned to their own side; the other kinds
// carry an explicit side (e.g. a reversal of a credit is a debit-side line).
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Entry is one immutable journal line.
// Invariant: never updated or deleted after commit.
type Entry struct {
	ID            string    `json:"id" db:"id"`
	Kind          Kind      `json:"kind" db:"kind"`
	Side          Side      `json:"side" db:"side"`
	Amount        int64     `json:"amount" db:"amount"`
	Currency      string    `json:"currency" db:"currency"`
	AccountID     string    `json:"account_id" db:"account_id"`
	PaymentID     string    `json:"payment_id,omitempty" db:"payment_id"`
	ReferenceID   string    `json:"reference_id,omitempty" db:"reference_id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	Metadata      attrs.Map `json:"metadata,omitempty" db:"metadata"`
	Signature     string    `json:"signature" db:"signature"`
	Version       int       `json:"version" db:"version"`
	CorrelationID string    `json:"correlation_id" db:"correlation_id"`
	RequestID     string    `json:"request_id,omitempty" db:"request_id"`
}

// Transaction is a group of entries sharing a correlation id, committed atomically.
// Each Record call yields exactly one transaction.
type Transaction struct {
	CorrelationID string    `json:"correlation_id"`
	RequestID     string    `json:"request_id,omitempty"`
	Entries       []Entry   `json:"entries"`
	CommittedAt   time.Time `json:"committed_at"`
}

// AccountBalance is derived from entries; it is never stored.
type AccountBalance struct {
	AccountID string    `json:"account_id"`
	Currency  string    `json:"currency"`
	Available int64     `json:"available"`
	Held      int64     `json:"held"`
	Total     int64     `json:"total"`
	AsOf      time.Time `json:"as_of"`
}

// System accounts used as the counter side of flows entering or leaving wallets.
const (
	AccountSettlementClearing = "system:settlement"
	AccountPayoutClearing     = "system:payout"
	AccountAdjustments        = "system:adjustments"
)

// WalletAccount is the journal account id of a user's wallet.
func WalletAccount(userID string) string { return "wallet:" + userID }

// IsSystemAccount reports whether the account is a platform-owned clearing account.
func IsSystemAccount(accountID string) bool {
	return strings.HasPrefix(accountID, "system:")
}
