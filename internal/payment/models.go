package payment

import (
	"fmt"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"
	"payment-platform/internal/journal"
	"payment-platform/internal/money"
)

// Type is the payment flavour. Keep stable; persisted.
type Type string

const (
	TypeDirect      Type = "direct_payment"
	TypePaymentLink Type = "payment_link"
	TypeWithdrawal  Type = "withdrawal"
	TypeDeposit     Type = "deposit"
	TypeRefund      Type = "refund"
	TypeChargeback  Type = "chargeback"
	TypeAdjustment  Type = "adjustment"
)

// State is the lifecycle state. Keep stable; persisted.
type State string

const (
	StatePending             State = "pending"
	StateProcessing          State = "processing"
	StatePendingConfirmation State = "pending_confirmation"
	StateCompleted           State = "completed"
	StateFailed              State = "failed"
	StateCancelled           State = "cancelled"
	StateRefunded            State = "refunded"
	StateExpired             State = "expired"
	StateChargeback          State = "chargeback"
)

var transitions = map[State][]State{
	StatePending:             {StateProcessing, StatePendingConfirmation, StateFailed, StateCancelled, StateExpired},
	StateProcessing:          {StateCompleted, StateFailed, StateCancelled},
	StatePendingConfirmation: {StateCompleted, StateCancelled, StateExpired},
	StateCompleted:           {StateRefunded, StateChargeback},
	StateFailed:              {StateProcessing, StateCancelled},
	StateExpired:             {StateCancelled},
}

// AllStates lists every state; used by closure tests.
var AllStates = []State{
	StatePending, StateProcessing, StatePendingConfirmation, StateCompleted, StateFailed,
	StateCancelled, StateRefunded, StateExpired, StateChargeback,
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal states accept no further transitions.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Hold is a reservation against the sender's available funds.
// IsReleased goes false -> true exactly once.
type Hold struct {
	ID         string     `json:"id" db:"id"`
	PaymentID  string     `json:"payment_id" db:"payment_id"`
	Amount     int64      `json:"amount" db:"amount"`
	Currency   string     `json:"currency" db:"currency"`
	Reason     string     `json:"reason" db:"reason"`
	ReleaseAt  *time.Time `json:"release_at,omitempty" db:"release_at"`
	IsReleased bool       `json:"is_released" db:"is_released"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty" db:"released_at"`
}

const (
	HoldReasonFraud         = "fraud_review"
	HoldReasonAuthorization = "authorization"
)

func (h Hold) Money() money.Money { return money.New(h.Amount, h.Currency) }

// Payment is the aggregate driven by the Orchestrator.
//
// Invariants:
// - Amount > 0.
// - Sum of non-released hold amounts <= Amount.
type Payment struct {
	ID          string      `json:"id" db:"id"`
	Type        Type        `json:"type" db:"type"`
	State       State       `json:"state" db:"state"`
	Amount      money.Money `json:"amount" db:"-"`
	SenderID    string      `json:"sender_id" db:"sender_id"`
	ReceiverID  string      `json:"receiver_id,omitempty" db:"receiver_id"`
	LinkID      string      `json:"link_id,omitempty" db:"link_id"`
	Description string      `json:"description,omitempty" db:"description"`
	Metadata    attrs.Map   `json:"metadata,omitempty" db:"metadata"`

	IdempotencyKey   string `json:"idempotency_key" db:"idempotency_key"`
	ConfirmationCode string `json:"confirmation_code,omitempty" db:"confirmation_code"`

	FailureCode        apperr.Code `json:"failure_code,omitempty" db:"failure_code"`
	FailureReason      string      `json:"failure_reason,omitempty" db:"failure_reason"`
	CancellationReason string      `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	RiskScore          *float64    `json:"risk_score,omitempty" db:"risk_score"`
	ReviewRequired     bool        `json:"review_required,omitempty" db:"review_required"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	Holds []Hold `json:"holds,omitempty" db:"-"`

	// Version is bumped on every persisted update.
	Version int64 `json:"version" db:"version"`
}

// transition moves p to the next state or fails without side effects.
func (p *Payment) transition(to State, now time.Time) error {
	if !CanTransition(p.State, to) {
		return apperr.New(apperr.CodeInvalidStateTransition, "payment %s: %s -> %s not allowed", p.ID, p.State, to)
	}
	p.State = to
	p.UpdatedAt = now
	if to == StateCompleted {
		t := now
		p.CompletedAt = &t
	}
	return nil
}

func (p *Payment) fail(code apperr.Code, reason string, now time.Time) error {
	if p.State == StatePending {
		if err := p.transition(StateProcessing, now); err != nil {
			return err
		}
	}
	if p.State != StateFailed {
		if err := p.transition(StateFailed, now); err != nil {
			return err
		}
	}
	p.FailureCode = code
	p.FailureReason = reason
	p.UpdatedAt = now
	return nil
}

// Expired reports whether an unsettled payment is past its deadline.
func (p Payment) Expired(now time.Time) bool {
	if p.ExpiresAt == nil {
		return false
	}
	if p.State != StatePending && p.State != StatePendingConfirmation {
		return false
	}
	return now.After(*p.ExpiresAt)
}

// OpenHolds returns indexes of holds not yet released.
func (p Payment) OpenHolds() []int {
	var out []int
	for i, h := range p.Holds {
		if !h.IsReleased {
			out = append(out, i)
		}
	}
	return out
}

func (p Payment) HeldAmount() int64 {
	var n int64
	for _, i := range p.OpenHolds() {
		n += p.Holds[i].Amount
	}
	return n
}

// Retryable reports whether a failed payment may be retried.
func (p Payment) Retryable() bool {
	return p.State == StateFailed &&
		(p.FailureCode == apperr.CodeInsufficientFunds || p.FailureCode == apperr.CodeLedgerWriteFailure)
}

// senderAccount and counterpartyAccount are the journal accounts on each side.
// A withdrawal has no receiver and pays into the payout clearing account.
func (p Payment) senderAccount() string { return accountOf(p.SenderID) }

func (p Payment) counterpartyAccount() string {
	if p.ReceiverID == "" {
		return journal.AccountPayoutClearing
	}
	return accountOf(p.ReceiverID)
}

// MerchantID is the webhook recipient, if any.
func (p Payment) MerchantID() string {
	if p.Type == TypePaymentLink {
		return p.ReceiverID
	}
	return ""
}

func accountOf(partyID string) string {
	if journal.IsSystemAccount(partyID) {
		return partyID
	}
	return journal.WalletAccount(partyID)
}

// isWallet reports whether the party is a user wallet the Ledger must mutate.
func isWallet(partyID string) bool {
	return partyID != "" && !journal.IsSystemAccount(partyID)
}

// Outcome is the result cached under an idempotency key so a replay is identical.
type Outcome struct {
	Payment      Payment     `json:"payment"`
	ErrorCode    apperr.Code `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

func newOutcome(p Payment, err error) Outcome {
	o := Outcome{Payment: p}
	if err != nil {
		o.ErrorCode = apperr.CodeOf(err)
		o.ErrorMessage = err.Error()
	}
	return o
}

func (o Outcome) Err() error { return apperr.FromCode(o.ErrorCode, o.ErrorMessage) }

func (p Payment) String() string {
	return fmt.Sprintf("payment %s (%s, %s, %s)", p.ID, p.Type, p.State, p.Amount)
}
