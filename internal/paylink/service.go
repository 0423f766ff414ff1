package paylink

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"
	"payment-platform/internal/events"
	"payment-platform/internal/fraud"
	"payment-platform/internal/money"
	"payment-platform/internal/payment"
	"payment-platform/pkg/logger"

	"github.com/google/uuid"
)

// Issuer creates payment links and redeems them through the payment orchestrator.
type Issuer struct {
	runner   TxRunner
	payments *payment.Orchestrator
	baseURL  string

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewIssuer(runner TxRunner, payments *payment.Orchestrator, baseURL string) *Issuer {
	return &Issuer{
		runner:   runner,
		payments: payments,
		baseURL:  strings.TrimRight(baseURL, "/"),
		clock:    time.Now,
	}
}

// WithClock replaces the clock (tests).
func (s *Issuer) WithClock(clock func() time.Time) *Issuer {
	s.clock = clock
	return s
}

func (s *Issuer) now() time.Time { return s.clock().UTC() }

type CreateRequest struct {
	MerchantID  string
	Amount      *int64
	Currency    string
	Description string
	ExpiresAt   *time.Time
	MaxUses     *int
	SingleUse   bool
}

func (s *Issuer) Create(ctx context.Context, req CreateRequest) (Link, error) {
	if req.MerchantID == "" {
		return Link{}, apperr.Validation("merchant is required")
	}
	cur, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return Link{}, apperr.Validation("%v", err)
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return Link{}, apperr.Validation("amount must be positive when set")
	}
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		return Link{}, apperr.Validation("max_uses must be positive when set")
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return Link{}, apperr.Validation("expires_at must be in the future")
	}

	id := uuid.NewString()
	l := Link{
		ID:          id,
		MerchantID:  req.MerchantID,
		Amount:      req.Amount,
		Currency:    cur,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		MaxUses:     req.MaxUses,
		IsActive:    true,
		SingleUse:   req.SingleUse,
		URL:         s.baseURL + "/" + id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertLink(ctx, l)
	}); err != nil {
		return Link{}, err
	}
	logger.From(ctx).Info("payment link created", "link_id", l.ID, "merchant_id", l.MerchantID)
	return l, nil
}

func (s *Issuer) Get(ctx context.Context, id string) (Link, error) {
	var l Link
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		l, err = tx.GetLink(ctx, id)
		return err
	})
	return l, err
}

// Deactivate turns a link off. Only its merchant may do so.
func (s *Issuer) Deactivate(ctx context.Context, id, merchantID string) (Link, error) {
	var l Link
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		l, err = tx.GetLinkForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if l.MerchantID != merchantID {
			return ErrNotFound
		}
		if !l.IsActive {
			return nil
		}
		l.deactivate(s.now())
		return tx.UpdateLink(ctx, l)
	})
	return l, err
}

// DeriveKey scopes a caller key to (link, payer) so the same caller key
// cannot collide across links. Parts are length-prefixed to stay unambiguous.
func DeriveKey(linkID, payerID, callerKey string) string {
	h := sha256.New()
	for _, part := range []string{linkID, payerID, callerKey} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return "link:" + hex.EncodeToString(h.Sum(nil))
}

type PayRequest struct {
	PayerID string
	// Amount is required for open-amount links and must match fixed ones.
	Amount      *int64
	CallerKey   string
	Description string
	Metadata    attrs.Map
}

// Pay redeems a link: the payment is created and settled, and the link use is
// counted, in one store transaction.
func (s *Issuer) Pay(ctx context.Context, linkID string, req PayRequest) (payment.Payment, error) {
	corr := logger.CorrelationID(ctx)
	if corr == "" {
		corr = uuid.NewString()
		ctx = logger.WithCorrelationID(ctx, corr)
	}
	if linkID == "" || req.PayerID == "" || req.CallerKey == "" {
		return payment.Payment{}, apperr.WithCorrelation(apperr.Validation("link, payer and idempotency key are required"), corr)
	}
	key := DeriveKey(linkID, req.PayerID, req.CallerKey)

	p, err := s.payments.Once(ctx, key, func(ctx context.Context) payment.Result {
		return s.pay(ctx, linkID, key, req)
	})
	return p, apperr.WithCorrelation(err, corr)
}

// rejected marks a link-level refusal that must not roll back the deactivation it caused.
type rejected struct{ error }

func (r rejected) Unwrap() error { return r.error }

// lockUsable locks the link and checks it for payerID. Permanent refusals
// (expired, used up) deactivate the link inside tx.
func (s *Issuer) lockUsable(ctx context.Context, tx Tx, linkID, payerID string) (Link, error) {
	l, err := tx.GetLinkForUpdate(ctx, linkID)
	if err != nil {
		return Link{}, err
	}
	deactivated, refusal := l.usable(payerID, s.now())
	if refusal == nil {
		return l, nil
	}
	if deactivated {
		if err := tx.UpdateLink(ctx, l); err != nil {
			return Link{}, err
		}
		logger.From(ctx).Info("payment link deactivated", "link_id", l.ID, "reason", apperr.CodeOf(refusal))
	}
	return l, rejected{refusal}
}

func chargeAmount(l Link, requested *int64) (int64, error) {
	if l.Amount != nil {
		if requested != nil && *requested != *l.Amount {
			return 0, apperr.Validation("amount must equal the link amount %d", *l.Amount)
		}
		return *l.Amount, nil
	}
	if requested == nil || *requested <= 0 {
		return 0, apperr.Validation("amount is required for this link")
	}
	return *requested, nil
}

func (s *Issuer) pay(ctx context.Context, linkID, key string, req PayRequest) payment.Result {
	var link Link
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		link, err = s.lockUsable(ctx, tx, linkID, req.PayerID)
		var r rejected
		if errors.As(err, &r) {
			return nil
		}
		return err
	})
	if err != nil {
		return payment.Result{Err: err}
	}
	if refusal := s.refusal(link, req.PayerID); refusal != nil {
		return payment.Result{Err: refusal}
	}

	amount, err := chargeAmount(link, req.Amount)
	if err != nil {
		return payment.Result{Err: err}
	}
	desc := req.Description
	if desc == "" {
		desc = link.Description
	}
	draft, err := s.payments.Draft(payment.CreateRequest{
		Type:           payment.TypePaymentLink,
		Amount:         money.New(amount, link.Currency),
		SenderID:       req.PayerID,
		ReceiverID:     link.MerchantID,
		LinkID:         link.ID,
		Description:    desc,
		Metadata:       req.Metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		return payment.Result{Err: err}
	}

	d := s.payments.Screen(ctx, &draft)
	if d.Action == fraud.ActionReject {
		failed, err := s.payments.RecordFailure(ctx, draft, apperr.New(apperr.CodeFraudRejected, "%s", d.Reason))
		if err != nil {
			return payment.Result{Err: err}
		}
		s.payments.Publish(ctx, failed, events.PaymentCreated, events.PaymentFailed, events.FraudAlert)
		return payment.Result{Payment: failed, Err: payment.FailureOf(failed), Persisted: true}
	}

	p := draft
	var (
		linkErr  error
		settling bool
	)
	err = s.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		l, err := s.lockUsable(ctx, tx, linkID, req.PayerID)
		var r rejected
		if errors.As(err, &r) {
			linkErr = r.error
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.payments.Admit(ctx, tx, &p); err != nil {
			return err
		}
		settling = true
		if err := s.payments.SettleTx(ctx, tx, &p); err != nil {
			return err
		}
		l.redeem(s.now())
		return tx.UpdateLink(ctx, l)
	})
	if linkErr != nil {
		return payment.Result{Err: linkErr}
	}
	if errors.Is(err, payment.ErrDuplicateKey) {
		return payment.Result{Err: apperr.New(apperr.CodeConflict, "payment for this key is in progress")}
	}
	if err != nil {
		if !settling {
			return payment.Result{Err: err}
		}
		failed, ferr := s.payments.RecordFailure(ctx, draft, err)
		if ferr != nil {
			return payment.Result{Err: ferr}
		}
		s.payments.Publish(ctx, failed, events.PaymentCreated, events.PaymentFailed)
		return payment.Result{Payment: failed, Err: payment.FailureOf(failed), Persisted: true}
	}

	names := []events.Name{events.PaymentCreated, events.PaymentCompleted}
	if d.Action == fraud.ActionHold || d.Action == fraud.ActionManualReview {
		names = append(names, events.FraudAlert)
	}
	logger.From(ctx).Info("payment link redeemed", "link_id", linkID, "payment_id", p.ID)
	s.payments.Publish(ctx, p, names...)
	return payment.Result{Payment: p, Persisted: true}
}

// refusal re-derives the refusal for a link read in phase one.
func (s *Issuer) refusal(l Link, payerID string) error {
	cp := l
	_, err := cp.usable(payerID, s.now())
	return err
}
