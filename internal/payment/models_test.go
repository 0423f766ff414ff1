package payment

import (
	"testing"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/money"
)

func TestTransition_ClosedOverAllStates(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, from := range AllStates {
		for _, to := range AllStates {
			p := Payment{ID: "p", State: from}
			err := p.transition(to, now)
			if CanTransition(from, to) {
				if err != nil {
					t.Fatalf("%s -> %s should be allowed: %v", from, to, err)
				}
				if p.State != to {
					t.Fatalf("%s -> %s left state %s", from, to, p.State)
				}
				continue
			}
			if apperr.CodeOf(err) != apperr.CodeInvalidStateTransition {
				t.Fatalf("%s -> %s should be rejected, got %v", from, to, err)
			}
			if p.State != from {
				t.Fatalf("rejected transition mutated state to %s", p.State)
			}
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[State]bool{StateCancelled: true, StateRefunded: true, StateChargeback: true}
	for _, s := range AllStates {
		if s.Terminal() != terminal[s] {
			t.Fatalf("%s terminal=%v", s, s.Terminal())
		}
	}
}

func TestFail_FromPendingPassesThroughProcessing(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Payment{ID: "p", State: StatePending}
	if err := p.fail(apperr.CodeInsufficientFunds, "insufficient funds", now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if p.State != StateFailed || !p.Retryable() {
		t.Fatalf("expected retryable failed payment, got %s/%s", p.State, p.FailureCode)
	}

	p.FailureCode = apperr.CodeFraudRejected
	if p.Retryable() {
		t.Fatalf("fraud rejections are not retryable")
	}
}

func TestHolds_OpenAndHeldAmount(t *testing.T) {
	p := Payment{Amount: money.New(1000, "USD"), Holds: []Hold{
		{ID: "a", Amount: 100, Currency: "USD"},
		{ID: "b", Amount: 200, Currency: "USD", IsReleased: true},
		{ID: "c", Amount: 300, Currency: "USD"},
	}}
	if got := p.OpenHolds(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("unexpected open holds %v", got)
	}
	if p.HeldAmount() != 400 {
		t.Fatalf("expected 400 held, got %d", p.HeldAmount())
	}
}

func TestExpired_OnlyUnsettledStates(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	for _, s := range AllStates {
		p := Payment{State: s, ExpiresAt: &past}
		want := s == StatePending || s == StatePendingConfirmation
		if p.Expired(now) != want {
			t.Fatalf("%s expired=%v want %v", s, p.Expired(now), want)
		}
	}
}

func TestConfirmationCode(t *testing.T) {
	code, err := NewConfirmationCode()
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 chars, got %q", code)
	}
	if !codesMatch(code, code) || codesMatch(code, "") {
		t.Fatalf("codesMatch misbehaves for %q", code)
	}
}
