package audit

import (
	"time"

	"payment-platform/internal/attrs"
)

// Event is an immutable, append-only audit log record of a privileged action
// on money: adjustments, chargebacks, deposit settlement, link deactivation.
//
// Invariants:
// - Events are never updated or deleted.
// - Type and ActorUserID are required.
// - Audit writes are best-effort; they never block or undo the action they describe.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event.
	ActorUserID string `json:"actor_user_id" db:"actor_user_id"`
	// ActorRole may include hidden roles.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Targets, depending on the event type.
	PaymentID    string `json:"payment_id,omitempty" db:"payment_id"`
	TargetUserID string `json:"target_user_id,omitempty" db:"target_user_id"`
	LinkID       string `json:"link_id,omitempty" db:"link_id"`

	Message       string    `json:"message,omitempty" db:"message"`
	Metadata      attrs.Map `json:"metadata,omitempty" db:"metadata"`
	CorrelationID string    `json:"correlation_id,omitempty" db:"correlation_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAdjustment      EventType = "wallet_adjustment"
	EventTypeChargeback      EventType = "payment_chargeback"
	EventTypeDepositSettled  EventType = "deposit_settled"
	EventTypeLinkDeactivated EventType = "link_deactivated"
)
