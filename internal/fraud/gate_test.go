package fraud_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"payment-platform/internal/fraud"
	"payment-platform/internal/fraud/fraudtest"
	"payment-platform/internal/money"
)

func req(amount int64) fraud.Request {
	return fraud.Request{
		PayerID: "payer",
		Payment: fraud.PaymentSummary{ID: "p1", Type: "direct_payment", Amount: money.New(amount, "USD")},
	}
}

func TestTimeoutGate_TimeoutResolvesToDefaultApprove(t *testing.T) {
	inner := &fraudtest.Gate{Block: true}
	g := fraud.WithTimeout(inner, 20*time.Millisecond)

	d, err := g.Evaluate(context.Background(), req(100))
	if err != nil {
		t.Fatalf("timeout must not surface as an error: %v", err)
	}
	if d != fraud.DefaultDecision {
		t.Fatalf("expected default decision, got %+v", d)
	}
	if d.Action != fraud.ActionApprove || d.Confidence >= 0.5 {
		t.Fatalf("default must be a low-confidence approval, got %+v", d)
	}
}

func TestTimeoutGate_ErrorResolvesToDefault(t *testing.T) {
	g := fraud.WithTimeout(&fraudtest.Gate{Err: errors.New("scorer down")}, time.Second)
	d, _ := g.Evaluate(context.Background(), req(100))
	if d != fraud.DefaultDecision {
		t.Fatalf("expected default decision, got %+v", d)
	}
}

func TestTimeoutGate_PassesThroughDecision(t *testing.T) {
	g := fraud.WithTimeout(fraudtest.WithAction(fraud.ActionReject, "blocked"), time.Second)
	d, _ := g.Evaluate(context.Background(), req(100))
	if d.Action != fraud.ActionReject || d.Reason != "blocked" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

type memCounter struct {
	mu sync.Mutex
	m  map[string]int64
}

func (c *memCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key]++
	return c.m[key], nil
}

func (c *memCounter) Get(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func TestRulesGate_AmountTiersAndFailedConfirmations(t *testing.T) {
	ctx := context.Background()
	g := fraud.NewRulesGate(&memCounter{m: map[string]int64{}}, fraud.RulesConfig{
		ReviewAmount:       1000,
		HighAmount:         10000,
		FailedConfirmLimit: 2,
	})

	cases := []struct {
		amount int64
		want   fraud.Action
	}{
		{amount: 500, want: fraud.ActionApprove},
		{amount: 1000, want: fraud.ActionManualReview},
		{amount: 10000, want: fraud.ActionHold},
	}
	for _, tc := range cases {
		d, err := g.Evaluate(ctx, req(tc.amount))
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if d.Action != tc.want {
			t.Fatalf("amount %d: expected %s, got %s (%s)", tc.amount, tc.want, d.Action, d.Reason)
		}
	}

	_ = g.ReportFailedConfirmation(ctx, "payer", "p1")
	_ = g.ReportFailedConfirmation(ctx, "payer", "p1")
	d, _ := g.Evaluate(ctx, req(10000))
	if d.Action != fraud.ActionReject || d.Score != 1 {
		t.Fatalf("expected reject after failed confirmations, got %+v", d)
	}
}

func TestRulesGate_Velocity(t *testing.T) {
	ctx := context.Background()
	g := fraud.NewRulesGate(&memCounter{m: map[string]int64{}}, fraud.RulesConfig{VelocityLimit: 2})
	var d fraud.Decision
	for i := 0; i < 3; i++ {
		d, _ = g.Evaluate(ctx, req(1))
	}
	if d.Action != fraud.ActionManualReview || d.Reason != "high_velocity" {
		t.Fatalf("expected velocity review, got %+v", d)
	}
}
