package events

import (
	"context"
	"time"
)

type Name string

const (
	PaymentCreated     Name = "payment.created"
	PaymentCompleted   Name = "payment.completed"
	PaymentFailed      Name = "payment.failed"
	PaymentRefunded    Name = "payment.refunded"
	PaymentChargedBack Name = "payment.charged_back"
	FraudAlert         Name = "fraud.alert"
)

// Event carries a full payment snapshot. Delivery and retry are the consumer's concern.
type Event struct {
	ID            string    `json:"id"`
	Name          Name      `json:"name"`
	PaymentID     string    `json:"payment_id"`
	MerchantID    string    `json:"merchant_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Snapshot      any       `json:"snapshot"`
}

// Sink receives semantic payment events for notification fan-out.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// WebhookSink receives events addressed to a single merchant.
type WebhookSink interface {
	PublishWebhook(ctx context.Context, merchantID string, ev Event) error
}
