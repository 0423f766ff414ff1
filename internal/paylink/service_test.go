package paylink_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/events"
	"payment-platform/internal/events/eventstest"
	"payment-platform/internal/fraud"
	"payment-platform/internal/fraud/fraudtest"
	"payment-platform/internal/idempotency"
	"payment-platform/internal/journal"
	"payment-platform/internal/paylink"
	"payment-platform/internal/payment"
	"payment-platform/internal/store/storetest"
	"payment-platform/internal/wallet"
)

type env struct {
	now    time.Time
	store  *storetest.Store
	gate   *fraudtest.Gate
	rec    *eventstest.Recorder
	orch   *payment.Orchestrator
	issuer *paylink.Issuer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return e.now }

	signer, err := journal.NewSigner([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	e.store = storetest.New()
	e.gate = fraudtest.Approve()
	e.rec = &eventstest.Recorder{}
	guard := idempotency.NewGuard(idempotency.NewMemoryStore().WithClock(clock), time.Hour, time.Second).WithClock(clock)

	orch := payment.NewOrchestrator(payment.Deps{
		Runner:   e.store.Payments(),
		Guard:    guard,
		Gate:     e.gate,
		Events:   e.rec,
		Webhooks: e.rec,
		Ledger:   wallet.NewLedger().WithClock(clock),
		Journal:  journal.New(signer).WithClock(clock),
	}, payment.Config{}).WithClock(clock)

	e.orch = orch
	e.issuer = paylink.NewIssuer(e.store.Links(), orch, "https://pay.example.com/l/").WithClock(clock)
	return e
}

func ptr[T any](v T) *T { return &v }

func (e *env) link(t *testing.T, req paylink.CreateRequest) paylink.Link {
	t.Helper()
	if req.MerchantID == "" {
		req.MerchantID = "shop"
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}
	l, err := e.issuer.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	return l
}

func TestCreate_ValidatesAndBuildsURL(t *testing.T) {
	e := newEnv(t)
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(5000))})
	if l.URL != "https://pay.example.com/l/"+l.ID {
		t.Fatalf("unexpected url %q", l.URL)
	}
	if !l.IsActive || l.Currency != "USD" {
		t.Fatalf("unexpected link %+v", l)
	}

	bad := []paylink.CreateRequest{
		{Currency: "USD"},
		{MerchantID: "shop", Currency: "dollars"},
		{MerchantID: "shop", Currency: "USD", Amount: ptr(int64(0))},
		{MerchantID: "shop", Currency: "USD", MaxUses: ptr(0)},
		{MerchantID: "shop", Currency: "USD", ExpiresAt: ptr(e.now.Add(-time.Hour))},
	}
	for i, req := range bad {
		if _, err := e.issuer.Create(context.Background(), req); apperr.CodeOf(err) != apperr.CodeValidation {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestPay_SingleUseLinkDeactivatesAfterFirstPayment(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("alice", "USD", 20000)
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(5000)), MaxUses: ptr(1), SingleUse: true})

	p, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "c1"})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if p.State != payment.StateCompleted || p.Type != payment.TypePaymentLink || p.LinkID != l.ID {
		t.Fatalf("unexpected payment %s %s %s", p.State, p.Type, p.LinkID)
	}
	if e.store.Balance("alice", "USD").Available != 15000 || e.store.Balance("shop", "USD").Available != 5000 {
		t.Fatalf("funds did not move")
	}

	got, _ := e.store.Link(l.ID)
	if got.IsActive || got.CurrentUses != 1 {
		t.Fatalf("expected inactive link with one use, got active=%v uses=%d", got.IsActive, got.CurrentUses)
	}

	_, err = e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "c2"})
	if code := apperr.CodeOf(err); code != apperr.CodeLinkInactive && code != apperr.CodeLinkMaxUses {
		t.Fatalf("expected link inactive or max uses, got %v", err)
	}
	if e.store.Balance("alice", "USD").Available != 15000 {
		t.Fatalf("second attempt must not move funds")
	}

	hooks := e.rec.Webhooks()
	if len(hooks) != 2 || hooks[0].MerchantID != "shop" {
		t.Fatalf("expected created and completed webhooks to the merchant, got %+v", hooks)
	}
	for _, h := range hooks {
		if snap, ok := h.Event.Snapshot.(payment.Payment); !ok || snap.ConfirmationCode != "" {
			t.Fatalf("webhook snapshot must not carry the confirmation code")
		}
	}
}

func TestPay_SameCallerKeyIsIdempotentPerLink(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("alice", "USD", 20000)
	a := e.link(t, paylink.CreateRequest{Amount: ptr(int64(1000))})
	b := e.link(t, paylink.CreateRequest{Amount: ptr(int64(1000))})

	first, err := e.issuer.Pay(context.Background(), a.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "same"})
	if err != nil {
		t.Fatalf("pay a: %v", err)
	}
	replay, err := e.issuer.Pay(context.Background(), a.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "same"})
	if err != nil || replay.ID != first.ID {
		t.Fatalf("replay should return %s, got %s (%v)", first.ID, replay.ID, err)
	}
	other, err := e.issuer.Pay(context.Background(), b.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "same"})
	if err != nil {
		t.Fatalf("pay b: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("the same caller key on another link must be a new payment")
	}
	if got := e.store.Balance("alice", "USD").Available; got != 18000 {
		t.Fatalf("expected two charges, alice has %d", got)
	}
	la, _ := e.store.Link(a.ID)
	if la.CurrentUses != 1 {
		t.Fatalf("replay must not count a use, got %d", la.CurrentUses)
	}
}

func TestDeriveKey(t *testing.T) {
	if paylink.DeriveKey("ab", "c", "k") == paylink.DeriveKey("a", "bc", "k") {
		t.Fatalf("derived keys must not collide on shifted boundaries")
	}
	if paylink.DeriveKey("l", "p", "k") != paylink.DeriveKey("l", "p", "k") {
		t.Fatalf("derived keys must be stable")
	}
}

func TestPay_MaxUsesConcurrent(t *testing.T) {
	e := newEnv(t)
	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		e.store.Fund(u, "USD", 1000)
	}
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(100)), MaxUses: ptr(3)})

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if _, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: u, CallerKey: "k"}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()

	if ok != 3 {
		t.Fatalf("expected exactly 3 successful payments, got %d", ok)
	}
	got, _ := e.store.Link(l.ID)
	if got.CurrentUses != 3 || got.IsActive {
		t.Fatalf("expected 3 uses and inactive, got uses=%d active=%v", got.CurrentUses, got.IsActive)
	}
}

func TestPay_ExpiredLinkIsDeactivated(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("alice", "USD", 1000)
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(100)), ExpiresAt: ptr(e.now.Add(time.Hour))})

	e.now = e.now.Add(2 * time.Hour)
	_, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "k"})
	if apperr.CodeOf(err) != apperr.CodeLinkExpired {
		t.Fatalf("expected link expired, got %v", err)
	}
	got, _ := e.store.Link(l.ID)
	if got.IsActive {
		t.Fatalf("an expired link should be deactivated")
	}
}

func TestPay_MerchantCannotPayOwnLink(t *testing.T) {
	e := newEnv(t)
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(100))})
	_, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "shop", CallerKey: "k"})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPay_AmountRules(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("alice", "USD", 10000)
	fixed := e.link(t, paylink.CreateRequest{Amount: ptr(int64(500))})
	open := e.link(t, paylink.CreateRequest{})

	_, err := e.issuer.Pay(context.Background(), fixed.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "a", Amount: ptr(int64(400))})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("mismatched fixed amount should be rejected, got %v", err)
	}
	_, err = e.issuer.Pay(context.Background(), open.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "b"})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("open link without amount should be rejected, got %v", err)
	}
	p, err := e.issuer.Pay(context.Background(), open.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "c", Amount: ptr(int64(750))})
	if err != nil {
		t.Fatalf("pay open: %v", err)
	}
	if p.Amount.Amount != 750 {
		t.Fatalf("expected 750, got %d", p.Amount.Amount)
	}
}

func TestPay_InsufficientFundsDoesNotConsumeUse(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("alice", "USD", 100)
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(500)), SingleUse: true})

	p, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "k"})
	if apperr.CodeOf(err) != apperr.CodeInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if p.State != payment.StateFailed {
		t.Fatalf("expected a failed payment, got %s", p.State)
	}
	got, _ := e.store.Link(l.ID)
	if !got.IsActive || got.CurrentUses != 0 {
		t.Fatalf("a failed payment must not consume the link, got active=%v uses=%d", got.IsActive, got.CurrentUses)
	}
}

func TestPay_FailedLinkPaymentCannotBeRetriedAroundTheLink(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("bob", "USD", 5000)
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(5000)), SingleUse: true})

	failed, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "a1"})
	if apperr.CodeOf(err) != apperr.CodeInsufficientFunds || failed.State != payment.StateFailed {
		t.Fatalf("expected failed payment on funds, got %s %v", failed.State, err)
	}
	if _, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "bob", CallerKey: "b1"}); err != nil {
		t.Fatalf("bob pay: %v", err)
	}

	e.store.Fund("alice", "USD", 5000)
	for name, run := range map[string]func(context.Context, string) (payment.Payment, error){
		"retry":     e.orch.Retry,
		"process":   e.orch.Process,
		"authorize": e.orch.Authorize,
	} {
		if _, err := run(context.Background(), failed.ID); apperr.CodeOf(err) != apperr.CodeInvalidStateTransition {
			t.Fatalf("%s: expected invalid state transition, got %v", name, err)
		}
	}

	got, _ := e.store.Link(l.ID)
	if got.IsActive || got.CurrentUses != 1 {
		t.Fatalf("expected one redemption on an inactive link, got active=%v uses=%d", got.IsActive, got.CurrentUses)
	}
	if e.store.Balance("shop", "USD").Available != 5000 || e.store.Balance("alice", "USD").Available != 5000 {
		t.Fatalf("merchant must be paid once and alice not charged")
	}
	if p, _ := e.orch.Get(context.Background(), failed.ID); p.State != payment.StateFailed {
		t.Fatalf("failed link payment must stay failed, got %s", p.State)
	}
}

func TestPay_FraudRejectFailsPayment(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("alice", "USD", 1000)
	e.gate.SetDecision(fraud.Decision{Action: fraud.ActionReject, Reason: "blocked", Score: 0.9})
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(100))})

	_, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "k"})
	if apperr.CodeOf(err) != apperr.CodeFraudRejected {
		t.Fatalf("expected fraud rejection, got %v", err)
	}
	if e.rec.Count(events.FraudAlert) != 1 {
		t.Fatalf("expected a fraud alert")
	}
	if e.store.Balance("alice", "USD").Available != 1000 {
		t.Fatalf("rejected payment must not move funds")
	}
}

func TestPay_JournalFailureRecordsFailedPayment(t *testing.T) {
	e := newEnv(t)
	e.store.Fund("alice", "USD", 1000)
	l := e.link(t, paylink.CreateRequest{Amount: ptr(int64(100))})
	e.store.SetJournalErr(errors.New("disk full"))

	p, err := e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "k"})
	if apperr.CodeOf(err) != apperr.CodeLedgerWriteFailure {
		t.Fatalf("expected ledger write failure, got %v", err)
	}
	if p.State != payment.StateFailed {
		t.Fatalf("expected failed, got %s", p.State)
	}
	if e.store.Balance("alice", "USD").Available != 1000 {
		t.Fatalf("balances must roll back")
	}
}

func TestDeactivate(t *testing.T) {
	e := newEnv(t)
	l := e.link(t, paylink.CreateRequest{})

	if _, err := e.issuer.Deactivate(context.Background(), l.ID, "someone-else"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("foreign merchant should see not found, got %v", err)
	}
	got, err := e.issuer.Deactivate(context.Background(), l.ID, "shop")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected inactive")
	}
	_, err = e.issuer.Pay(context.Background(), l.ID, paylink.PayRequest{PayerID: "alice", CallerKey: "k", Amount: ptr(int64(10))})
	if apperr.CodeOf(err) != apperr.CodeLinkInactive {
		t.Fatalf("expected link inactive, got %v", err)
	}
}
