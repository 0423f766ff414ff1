package fraud

import (
	"context"
	"time"

	"payment-platform/internal/attrs"
	"payment-platform/internal/money"
	"payment-platform/pkg/logger"
)

type Action string

const (
	ActionApprove      Action = "approve"
	ActionHold         Action = "hold"
	ActionReject       Action = "reject"
	ActionManualReview Action = "manual_review"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// PaymentSummary is the subset of a payment the gate scores.
type PaymentSummary struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Amount    money.Money `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
	Metadata  attrs.Map   `json:"metadata,omitempty"`
}

type Request struct {
	PayerID string         `json:"payer_id"`
	Payment PaymentSummary `json:"payment"`
}

type Decision struct {
	Score      float64   `json:"score"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Action     Action    `json:"action"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
}

// Gate is the narrow decision contract consumed by the orchestrator.
type Gate interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
	ReportFailedConfirmation(ctx context.Context, payerID, paymentID string) error
}

// DefaultDecision is returned when the gate errors or times out.
// The policy is fail-open: a low-confidence approval.
var DefaultDecision = Decision{
	Score:      0,
	RiskLevel:  RiskLow,
	Action:     ActionApprove,
	Reason:     "fraud gate unavailable",
	Confidence: 0.1,
}

// TimeoutGate bounds every call to the wrapped gate.
type TimeoutGate struct {
	next    Gate
	timeout time.Duration
}

func WithTimeout(next Gate, timeout time.Duration) *TimeoutGate {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TimeoutGate{next: next, timeout: timeout}
}

// Evaluate never returns an error; failures resolve to DefaultDecision.
func (g *TimeoutGate) Evaluate(ctx context.Context, req Request) (Decision, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		d   Decision
		err error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := g.next.Evaluate(cctx, req)
		ch <- result{d, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			logger.From(ctx).Warn("fraud gate failed; using default decision", "payment_id", req.Payment.ID, "err", r.err)
			return DefaultDecision, nil
		}
		return r.d, nil
	case <-cctx.Done():
		logger.From(ctx).Warn("fraud gate timed out; using default decision", "payment_id", req.Payment.ID, "timeout", g.timeout)
		return DefaultDecision, nil
	}
}

func (g *TimeoutGate) ReportFailedConfirmation(ctx context.Context, payerID, paymentID string) error {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.ReportFailedConfirmation(cctx, payerID, paymentID)
}
