package wallet

import (
	"encoding/json"
	"time"
)

// Wallet belongs to exactly one user and is created lazily on first access.
// Money state lives in Balance rows, one per currency.
type Wallet struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	IsActive bool   `json:"is_active" db:"is_active"`

	// Version increases on every balance mutation of any currency.
	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Balance is the per-(wallet, currency) projection mutated only by Ledger.
//
// Invariants:
// - Available, Held and Pending are each >= 0.
// - Total is always Available+Held+Pending; it is derived, never stored.
type Balance struct {
	WalletID  string `json:"wallet_id" db:"wallet_id"`
	UserID    string `json:"user_id" db:"user_id"`
	Currency  string `json:"currency" db:"currency"`
	Available int64  `json:"available" db:"available"`
	Held      int64  `json:"held" db:"held"`
	Pending   int64  `json:"pending" db:"pending"`

	// Version is the optimistic concurrency counter for this row.
	Version int64 `json:"version" db:"version"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (b Balance) Total() int64 { return b.Available + b.Held + b.Pending }

func (b Balance) MarshalJSON() ([]byte, error) {
	type plain Balance
	return json.Marshal(struct {
		plain
		Total int64 `json:"total"`
	}{plain: plain(b), Total: b.Total()})
}

func (b Balance) valid() bool {
	return b.Available >= 0 && b.Held >= 0 && b.Pending >= 0
}
