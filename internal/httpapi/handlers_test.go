package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/audit"
	"payment-platform/internal/auth"
	"payment-platform/internal/events/eventstest"
	"payment-platform/internal/fraud/fraudtest"
	"payment-platform/internal/idempotency"
	"payment-platform/internal/journal"
	"payment-platform/internal/paylink"
	"payment-platform/internal/payment"
	"payment-platform/internal/rbac"
	"payment-platform/internal/store/storetest"
	"payment-platform/internal/wallet"

	"github.com/gin-gonic/gin"
)

const (
	headerTestUser = "X-Test-User"
	headerTestRole = "X-Test-Role"
)

type api struct {
	store  *storetest.Store
	audit  *audit.MemoryRepo
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) }
	signer, err := journal.NewSigner([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	st := storetest.New()
	rec := &eventstest.Recorder{}
	orch := payment.NewOrchestrator(payment.Deps{
		Runner:   st.Payments(),
		Guard:    idempotency.NewGuard(idempotency.NewMemoryStore().WithClock(clock), time.Hour, time.Second).WithClock(clock),
		Gate:     fraudtest.Approve(),
		Events:   rec,
		Webhooks: rec,
		Ledger:   wallet.NewLedger().WithClock(clock),
		Journal:  journal.New(signer).WithClock(clock),
	}, payment.Config{}).WithClock(clock)

	repo := audit.NewMemoryRepo()
	h := Handlers{
		Payments: orch,
		Links:    paylink.NewIssuer(st.Links(), orch, "https://pay.example.com/l").WithClock(clock),
		Audit:    audit.NewService(repo).WithClock(clock),
	}

	r := gin.New()
	identity := func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), c.GetHeader(headerTestUser), c.GetHeader(headerTestRole))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
	h.Register(r.Group("/v1", identity), nil)
	return &api{store: st, audit: repo, router: r}
}

type as struct{ user, role string }

var (
	alice   = as{"alice", rbac.RoleCustomer}
	bob     = as{"bob", rbac.RoleCustomer}
	mallory = as{"mallory", rbac.RoleCustomer}
	shop    = as{"shop", rbac.RoleMerchant}
	finance = as{"fin-1", rbac.RoleFinance}
	rail    = as{"rail", rbac.RoleService}
)

func (a *api) call(t *testing.T, method, path string, who as, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerTestUser, who.user)
	req.Header.Set(headerTestRole, who.role)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type paymentBody struct {
	ID               string `json:"id"`
	State            string `json:"state"`
	ConfirmationCode string `json:"confirmation_code"`
	FailureCode      string `json:"failure_code"`
	Amount           struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

type errorBody struct {
	Success       bool         `json:"success"`
	Code          string       `json:"code"`
	Message       string       `json:"message"`
	CorrelationID string       `json:"correlation_id"`
	Payment       *paymentBody `json:"payment"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func (a *api) pay(t *testing.T, from as, key, to, amount string) paymentBody {
	t.Helper()
	w := a.call(t, http.MethodPost, "/v1/payments", from, key, gin.H{"receiver_id": to, "amount": amount, "currency": "USD"})
	wantStatus(t, w, http.StatusCreated)
	return decode[paymentBody](t, w)
}

func TestCreateAndProcessPayment(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 100000)

	p := a.pay(t, alice, "k1", "bob", "300.00")
	if p.State != string(payment.StatePending) || p.Amount.Amount != 30000 {
		t.Fatalf("unexpected payment %+v", p)
	}
	if p.ConfirmationCode != "" {
		t.Fatalf("confirmation code must not be returned")
	}

	w := a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/process", alice, "", nil)
	wantStatus(t, w, http.StatusOK)
	if got := decode[paymentBody](t, w); got.State != string(payment.StateCompleted) {
		t.Fatalf("expected completed, got %s", got.State)
	}
	if a.store.Balance("alice", "USD").Available != 70000 || a.store.Balance("bob", "USD").Available != 30000 {
		t.Fatalf("unexpected balances")
	}

	w = a.call(t, http.MethodGet, "/v1/wallet", bob, "", nil)
	wantStatus(t, w, http.StatusOK)
	body := decode[struct {
		Balances []struct {
			Currency  string `json:"currency"`
			Available int64  `json:"available"`
			Total     int64  `json:"total"`
		} `json:"balances"`
	}](t, w)
	if len(body.Balances) != 1 || body.Balances[0].Available != 30000 || body.Balances[0].Total != 30000 {
		t.Fatalf("unexpected wallet %+v", body)
	}
}

func TestCreatePayment_KeysAreScopedPerCaller(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 100000)
	a.store.Fund("mallory", "USD", 100000)

	first := a.pay(t, alice, "k1", "bob", "10.00")
	again := a.pay(t, alice, "k1", "bob", "10.00")
	other := a.pay(t, mallory, "k1", "bob", "10.00")

	if first.ID != again.ID {
		t.Fatalf("replay returned a new payment")
	}
	if other.ID == first.ID {
		t.Fatalf("a different caller's key must not collide")
	}
	if a.store.PaymentCount() != 2 {
		t.Fatalf("expected 2 payments, got %d", a.store.PaymentCount())
	}
}

func TestCreatePayment_RejectsBadInput(t *testing.T) {
	a := newAPI(t)

	cases := []struct {
		name string
		who  as
		key  string
		body gin.H
		want int
	}{
		{"missing key", alice, "", gin.H{"receiver_id": "bob", "amount": "1.00", "currency": "USD"}, http.StatusBadRequest},
		{"both amounts", alice, "k", gin.H{"receiver_id": "bob", "amount": "1.00", "amount_minor": 100, "currency": "USD"}, http.StatusBadRequest},
		{"too precise", alice, "k", gin.H{"receiver_id": "bob", "amount": "1.001", "currency": "USD"}, http.StatusBadRequest},
		{"deposit type", alice, "k", gin.H{"type": "deposit", "receiver_id": "bob", "amount": "1.00", "currency": "USD"}, http.StatusBadRequest},
		{"zero amount", alice, "k", gin.H{"receiver_id": "bob", "amount_minor": 0, "currency": "USD"}, http.StatusBadRequest},
		{"finance cannot pay", finance, "k", gin.H{"receiver_id": "bob", "amount": "1.00", "currency": "USD"}, http.StatusForbidden},
		{"anonymous", as{}, "k", gin.H{"receiver_id": "bob", "amount": "1.00", "currency": "USD"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.call(t, http.MethodPost, "/v1/payments", tc.who, tc.key, tc.body)
			wantStatus(t, w, tc.want)
			if tc.want == http.StatusBadRequest {
				if b := decode[errorBody](t, w); b.Success || b.Code != string(apperr.CodeValidation) {
					t.Fatalf("unexpected body %+v", b)
				}
			}
		})
	}
}

func TestProcess_InsufficientFundsReturnsFailedPayment(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 1000)

	p := a.pay(t, alice, "k1", "bob", "20.00")
	w := a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/process", alice, "", nil)
	wantStatus(t, w, http.StatusUnprocessableEntity)

	b := decode[errorBody](t, w)
	if b.Code != string(apperr.CodeInsufficientFunds) || b.Payment == nil || b.Payment.State != string(payment.StateFailed) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if a.store.Balance("alice", "USD").Available != 1000 {
		t.Fatalf("balance must not change")
	}

	a.store.Fund("alice", "USD", 5000)
	w = a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/retry", alice, "", nil)
	wantStatus(t, w, http.StatusOK)
}

func TestPaymentAccess(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 10000)
	p := a.pay(t, alice, "k1", "bob", "10.00")

	wantStatus(t, a.call(t, http.MethodGet, "/v1/payments/"+p.ID, bob, "", nil), http.StatusOK)
	wantStatus(t, a.call(t, http.MethodGet, "/v1/payments/"+p.ID, finance, "", nil), http.StatusOK)
	wantStatus(t, a.call(t, http.MethodGet, "/v1/payments/"+p.ID, mallory, "", nil), http.StatusNotFound)
	wantStatus(t, a.call(t, http.MethodGet, "/v1/payments/nope", alice, "", nil), http.StatusNotFound)

	// Only the sender drives settlement.
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/process", bob, "", nil), http.StatusNotFound)
	// Refunds come from the receiving side.
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/refund", alice, "", nil), http.StatusNotFound)
}

func TestConfirmAndCancel(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 10000)
	p := a.pay(t, alice, "k1", "bob", "10.00")

	w := a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/confirm", alice, "", gin.H{"code": "WRONG1"})
	wantStatus(t, w, http.StatusUnprocessableEntity)
	if b := decode[errorBody](t, w); b.Code != string(apperr.CodeConfirmationMismatch) {
		t.Fatalf("expected mismatch, got %+v", b)
	}
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/confirm", alice, "", gin.H{}), http.StatusBadRequest)

	w = a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/cancel", alice, "", nil)
	wantStatus(t, w, http.StatusOK)
	if got := decode[paymentBody](t, w); got.State != string(payment.StateCancelled) {
		t.Fatalf("expected cancelled, got %s", got.State)
	}
	w = a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/process", alice, "", nil)
	wantStatus(t, w, http.StatusConflict)
}

func TestAuthorizeCaptureAndRefund(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 10000)
	p := a.pay(t, alice, "k1", "bob", "40.00")

	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/authorize", alice, "", nil), http.StatusOK)
	if b := a.store.Balance("alice", "USD"); b.Held != 4000 || b.Available != 6000 {
		t.Fatalf("expected funds held, got %+v", b)
	}
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/capture", alice, "", nil), http.StatusOK)
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/refund", bob, "", nil), http.StatusOK)

	if a.store.Balance("alice", "USD").Available != 10000 || a.store.Balance("bob", "USD").Available != 0 {
		t.Fatalf("refund did not reverse balances")
	}
}

func TestChargeback_FinanceOnlyAndAudited(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 10000)
	p := a.pay(t, alice, "k1", "bob", "10.00")
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/process", alice, "", nil), http.StatusOK)

	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/chargeback", alice, "", gin.H{"reason": "x"}), http.StatusForbidden)
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/chargeback", finance, "", gin.H{}), http.StatusBadRequest)

	w := a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/chargeback", finance, "", gin.H{"reason": "card dispute"})
	wantStatus(t, w, http.StatusOK)
	if got := decode[paymentBody](t, w); got.State != string(payment.StateChargeback) {
		t.Fatalf("expected chargeback, got %s", got.State)
	}

	evs := a.audit.Events()
	if len(evs) != 1 {
		t.Fatalf("expected one audit event, got %d", len(evs))
	}
	e := evs[0]
	if e.Type != audit.EventTypeChargeback || e.ActorUserID != "fin-1" || e.ActorRole != rbac.RoleFinance || e.PaymentID != p.ID || e.IPAddress == "" {
		t.Fatalf("unexpected audit event %+v", e)
	}
}

func TestDepositStageAndSettle(t *testing.T) {
	a := newAPI(t)

	body := gin.H{"user_id": "bob", "amount": "25.00", "currency": "USD", "reference": "wire-1"}
	wantStatus(t, a.call(t, http.MethodPost, "/v1/deposits", alice, "d1", body), http.StatusForbidden)

	w := a.call(t, http.MethodPost, "/v1/deposits", rail, "d1", body)
	wantStatus(t, w, http.StatusCreated)
	p := decode[paymentBody](t, w)
	if b := a.store.Balance("bob", "USD"); b.Pending != 2500 || b.Available != 0 {
		t.Fatalf("expected pending funds, got %+v", b)
	}

	wantStatus(t, a.call(t, http.MethodPost, "/v1/deposits/"+p.ID+"/settle", rail, "", nil), http.StatusOK)
	if b := a.store.Balance("bob", "USD"); b.Pending != 0 || b.Available != 2500 {
		t.Fatalf("expected settled funds, got %+v", b)
	}
	evs := a.audit.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeDepositSettled || evs[0].TargetUserID != "bob" {
		t.Fatalf("unexpected audit %+v", evs)
	}
}

func TestAdjust(t *testing.T) {
	a := newAPI(t)

	wantStatus(t, a.call(t, http.MethodPost, "/v1/admin/adjustments", finance, "a1",
		gin.H{"user_id": "bob", "amount_minor": 700, "currency": "USD", "direction": "sideways", "reason": "x"}), http.StatusBadRequest)
	wantStatus(t, a.call(t, http.MethodPost, "/v1/admin/adjustments", alice, "a1",
		gin.H{"user_id": "bob", "amount_minor": 700, "currency": "USD", "direction": "credit", "reason": "x"}), http.StatusForbidden)

	w := a.call(t, http.MethodPost, "/v1/admin/adjustments", finance, "a1",
		gin.H{"user_id": "bob", "amount_minor": 700, "currency": "USD", "direction": "credit", "reason": "goodwill"})
	wantStatus(t, w, http.StatusCreated)
	if a.store.Balance("bob", "USD").Available != 700 {
		t.Fatalf("adjustment not applied")
	}
	evs := a.audit.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeAdjustment || evs[0].Message != "goodwill" {
		t.Fatalf("unexpected audit %+v", evs)
	}
}

func TestJournalEndpoints(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 10000)
	p := a.pay(t, alice, "k1", "bob", "10.00")
	wantStatus(t, a.call(t, http.MethodPost, "/v1/payments/"+p.ID+"/process", alice, "", nil), http.StatusOK)

	w := a.call(t, http.MethodGet, "/v1/journal/balance?currency=usd", bob, "", nil)
	wantStatus(t, w, http.StatusOK)
	if b := decode[journal.AccountBalance](t, w); b.AccountID != journal.WalletAccount("bob") || b.Available != 1000 {
		t.Fatalf("unexpected journal balance %+v", b)
	}

	wantStatus(t, a.call(t, http.MethodGet, "/v1/journal/balance?currency=USD&account=wallet:alice", bob, "", nil), http.StatusNotFound)
	wantStatus(t, a.call(t, http.MethodGet, "/v1/journal/balance?currency=USD&account=wallet:alice", finance, "", nil), http.StatusOK)
	wantStatus(t, a.call(t, http.MethodGet, "/v1/journal/balance?currency=USD&as_of=yesterday", bob, "", nil), http.StatusBadRequest)
	wantStatus(t, a.call(t, http.MethodGet, "/v1/journal/balance", bob, "", nil), http.StatusBadRequest)

	wantStatus(t, a.call(t, http.MethodGet, "/v1/journal/verify?currency=USD&account=wallet:bob", bob, "", nil), http.StatusForbidden)
	w = a.call(t, http.MethodGet, "/v1/journal/verify?currency=USD&account=wallet:bob", finance, "", nil)
	wantStatus(t, w, http.StatusOK)
	if v := decode[struct {
		Valid bool `json:"valid"`
	}](t, w); !v.Valid {
		t.Fatalf("expected untampered journal")
	}
}

func TestCheckBalanceIsAdvisory(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 500)

	w := a.call(t, http.MethodGet, "/v1/wallet/check?amount=5.00&currency=USD", alice, "", nil)
	wantStatus(t, w, http.StatusOK)
	if v := decode[struct {
		Sufficient bool `json:"sufficient"`
	}](t, w); !v.Sufficient {
		t.Fatalf("expected sufficient")
	}
	w = a.call(t, http.MethodGet, "/v1/wallet/check?amount=5.01&currency=USD", alice, "", nil)
	if v := decode[struct {
		Sufficient bool `json:"sufficient"`
	}](t, w); v.Sufficient {
		t.Fatalf("expected insufficient")
	}
}

func TestPaymentLinkFlow(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 10000)

	wantStatus(t, a.call(t, http.MethodPost, "/v1/links", alice, "", gin.H{"amount": "50.00", "currency": "USD"}), http.StatusForbidden)

	w := a.call(t, http.MethodPost, "/v1/links", shop, "", gin.H{"amount": "50.00", "currency": "USD", "max_uses": 1, "single_use": true})
	wantStatus(t, w, http.StatusCreated)
	link := decode[paylink.Link](t, w)
	if link.Amount == nil || *link.Amount != 5000 || link.URL != "https://pay.example.com/l/"+link.ID {
		t.Fatalf("unexpected link %+v", link)
	}

	wantStatus(t, a.call(t, http.MethodPost, "/v1/links/"+link.ID+"/pay", alice, "", nil), http.StatusBadRequest)

	w = a.call(t, http.MethodPost, "/v1/links/"+link.ID+"/pay", alice, "c1", nil)
	wantStatus(t, w, http.StatusCreated)
	if p := decode[paymentBody](t, w); p.State != string(payment.StateCompleted) {
		t.Fatalf("expected completed link payment, got %+v", p)
	}
	if a.store.Balance("shop", "USD").Available != 5000 {
		t.Fatalf("merchant not credited")
	}

	w = a.call(t, http.MethodPost, "/v1/links/"+link.ID+"/pay", alice, "c2", nil)
	wantStatus(t, w, http.StatusGone)

	w = a.call(t, http.MethodGet, "/v1/links/"+link.ID, bob, "", nil)
	wantStatus(t, w, http.StatusOK)
	if got := decode[paylink.Link](t, w); got.IsActive || got.CurrentUses != 1 {
		t.Fatalf("expected used up link, got %+v", got)
	}
}

func TestPayLink_OpenAmountUsesLinkCurrency(t *testing.T) {
	a := newAPI(t)
	a.store.Fund("alice", "USD", 10000)

	w := a.call(t, http.MethodPost, "/v1/links", shop, "", gin.H{"currency": "USD"})
	wantStatus(t, w, http.StatusCreated)
	link := decode[paylink.Link](t, w)

	wantStatus(t, a.call(t, http.MethodPost, "/v1/links/"+link.ID+"/pay", alice, "c1", gin.H{"amount": "1.00", "currency": "EUR"}), http.StatusBadRequest)

	w = a.call(t, http.MethodPost, "/v1/links/"+link.ID+"/pay", alice, "c1", gin.H{"amount": "12.34"})
	wantStatus(t, w, http.StatusCreated)
	if p := decode[paymentBody](t, w); p.Amount.Amount != 1234 {
		t.Fatalf("unexpected amount %+v", p.Amount)
	}
}

func TestDeactivateLink(t *testing.T) {
	a := newAPI(t)
	w := a.call(t, http.MethodPost, "/v1/links", shop, "", gin.H{"currency": "USD"})
	link := decode[paylink.Link](t, w)

	other := as{"other-shop", rbac.RoleMerchant}
	wantStatus(t, a.call(t, http.MethodPost, "/v1/links/"+link.ID+"/deactivate", other, "", nil), http.StatusNotFound)

	w = a.call(t, http.MethodPost, "/v1/links/"+link.ID+"/deactivate", shop, "", nil)
	wantStatus(t, w, http.StatusOK)
	if got := decode[paylink.Link](t, w); got.IsActive {
		t.Fatalf("expected inactive link")
	}
	evs := a.audit.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeLinkDeactivated || evs[0].LinkID != link.ID {
		t.Fatalf("unexpected audit %+v", evs)
	}
}

type fakeLimiter struct {
	ok       bool
	err      error
	acquired []string
	released []string
}

func (f *fakeLimiter) Acquire(ctx context.Context, id string) (bool, error) {
	f.acquired = append(f.acquired, id)
	return f.ok, f.err
}

func (f *fakeLimiter) Release(ctx context.Context, id string) error {
	f.released = append(f.released, id)
	return nil
}

func TestInflightCap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	serve := func(l Limiter, user string) int {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), user, rbac.RoleCustomer))
			c.Next()
		}, InflightCap(l), func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w.Code
	}

	l := &fakeLimiter{ok: true}
	if code := serve(l, "alice"); code != http.StatusOK || len(l.released) != 1 || l.released[0] != "alice" {
		t.Fatalf("expected pass and release, got %d %+v", code, l)
	}

	l = &fakeLimiter{ok: false}
	if code := serve(l, "alice"); code != http.StatusTooManyRequests || len(l.released) != 0 {
		t.Fatalf("expected 429 without release, got %d %+v", code, l)
	}

	l = &fakeLimiter{err: errors.New("redis down")}
	if code := serve(l, "alice"); code != http.StatusOK {
		t.Fatalf("limiter outage must not block, got %d", code)
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[apperr.Code]int{
		apperr.CodeValidation:             http.StatusBadRequest,
		apperr.CodeNotFound:               http.StatusNotFound,
		apperr.CodeInvalidStateTransition: http.StatusConflict,
		apperr.CodeInsufficientFunds:      http.StatusUnprocessableEntity,
		apperr.CodeLinkMaxUses:            http.StatusGone,
		apperr.CodeLedgerWriteFailure:     http.StatusServiceUnavailable,
		apperr.CodeInternal:               http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := statusOf(code); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}
