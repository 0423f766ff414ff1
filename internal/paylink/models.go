package paylink

import (
	"time"

	"payment-platform/internal/apperr"
)

// Link is a shareable payment request issued by a merchant.
//
// Invariants:
// - CurrentUses <= MaxUses when MaxUses is set.
// - IsActive is forced false once expired, once MaxUses is reached, or once a SingleUse link is redeemed.
type Link struct {
	ID          string     `json:"id" db:"id"`
	MerchantID  string     `json:"merchant_id" db:"merchant_id"`
	Amount      *int64     `json:"amount,omitempty" db:"amount"`
	Currency    string     `json:"currency" db:"currency"`
	Description string     `json:"description,omitempty" db:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	MaxUses     *int       `json:"max_uses,omitempty" db:"max_uses"`
	CurrentUses int        `json:"current_uses" db:"current_uses"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	SingleUse   bool       `json:"single_use" db:"single_use"`
	URL         string     `json:"url" db:"url"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// usable reports why the link cannot be paid by payerID at now.
// It deactivates l in place when the reason is permanent; the caller persists that.
func (l *Link) usable(payerID string, now time.Time) (deactivated bool, err error) {
	if !l.IsActive {
		return false, apperr.New(apperr.CodeLinkInactive, "payment link %s is inactive", l.ID)
	}
	if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		l.deactivate(now)
		return true, apperr.New(apperr.CodeLinkExpired, "payment link %s expired", l.ID)
	}
	if l.MaxUses != nil && l.CurrentUses >= *l.MaxUses {
		l.deactivate(now)
		return true, apperr.New(apperr.CodeLinkMaxUses, "payment link %s reached its use limit", l.ID)
	}
	if payerID == l.MerchantID {
		return false, apperr.Validation("merchant cannot pay their own link")
	}
	return false, nil
}

// redeem records one successful use.
func (l *Link) redeem(now time.Time) {
	l.CurrentUses++
	l.UpdatedAt = now
	if l.SingleUse || (l.MaxUses != nil && l.CurrentUses >= *l.MaxUses) {
		l.IsActive = false
	}
}

func (l *Link) deactivate(now time.Time) {
	l.IsActive = false
	l.UpdatedAt = now
}
