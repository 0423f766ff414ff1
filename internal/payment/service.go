package payment

import (
	"context"
	"errors"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"
	"payment-platform/internal/events"
	"payment-platform/internal/fraud"
	"payment-platform/internal/journal"
	"payment-platform/internal/money"
	"payment-platform/internal/wallet"
	"payment-platform/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Guard is the idempotency contract consumed by the orchestrator.
type Guard interface {
	Check(ctx context.Context, key string, out any) bool
	Store(ctx context.Context, key string, v any, ttl time.Duration) error
}

type Config struct {
	// HoldPercent and HoldCap (minor units) size the fraud hold: min(pct% of amount, cap).
	HoldPercent    int64
	HoldCap        int64
	RefundWindow   time.Duration
	PaymentTTL     time.Duration
	IdempotencyTTL time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.HoldPercent <= 0 {
		out.HoldPercent = 10
	}
	if out.HoldCap <= 0 {
		out.HoldCap = 50000
	}
	if out.RefundWindow <= 0 {
		out.RefundWindow = 30 * 24 * time.Hour
	}
	if out.PaymentTTL <= 0 {
		out.PaymentTTL = 24 * time.Hour
	}
	if out.IdempotencyTTL <= 0 {
		out.IdempotencyTTL = 24 * time.Hour
	}
	return out
}

type Deps struct {
	Runner   TxRunner
	Guard    Guard
	Gate     fraud.Gate
	Events   events.Sink
	Webhooks events.WebhookSink
	Ledger   *wallet.Ledger
	Journal  *journal.Journal
}

// Orchestrator drives the payment state machine.
//
// Rules:
// - A transition is validated before any side effect.
// - Balance changes and their journal lines commit in one store transaction.
// - A payment is never committed in Processing; a failed settlement records Failed instead.
type Orchestrator struct {
	runner   TxRunner
	guard    Guard
	gate     fraud.Gate
	events   events.Sink
	webhooks events.WebhookSink
	ledger   *wallet.Ledger
	journal  *journal.Journal
	cfg      Config

	// clock is injectable for deterministic tests.
	clock  func() time.Time
	flight singleflight.Group
}

func NewOrchestrator(d Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		runner:   d.Runner,
		guard:    d.Guard,
		gate:     d.Gate,
		events:   d.Events,
		webhooks: d.Webhooks,
		ledger:   d.Ledger,
		journal:  d.Journal,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
	}
}

// WithClock replaces the clock (tests).
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

func (o *Orchestrator) now() time.Time { return o.clock().UTC() }

// trace ensures ctx carries a correlation id and returns it.
func (o *Orchestrator) trace(ctx context.Context) (context.Context, string) {
	id := logger.CorrelationID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = logger.WithCorrelationID(ctx, id)
	}
	return ctx, id
}

type CreateRequest struct {
	Type           Type
	Amount         money.Money
	SenderID       string
	ReceiverID     string
	LinkID         string
	Description    string
	Metadata       attrs.Map
	IdempotencyKey string
	ExpiresAt      *time.Time
}

// Draft validates req and builds an unsaved Pending payment.
func (o *Orchestrator) Draft(req CreateRequest) (Payment, error) {
	if req.Type == "" {
		req.Type = TypeDirect
	}
	switch req.Type {
	case TypeDirect, TypePaymentLink:
		if req.ReceiverID == "" {
			return Payment{}, apperr.Validation("receiver is required")
		}
	case TypeWithdrawal:
		if req.ReceiverID != "" {
			return Payment{}, apperr.Validation("a withdrawal has no receiver")
		}
	default:
		return Payment{}, apperr.Validation("payment type %q cannot be created here", req.Type)
	}
	if req.IdempotencyKey == "" {
		return Payment{}, apperr.Validation("idempotency key is required")
	}
	if req.SenderID == "" {
		return Payment{}, apperr.Validation("sender is required")
	}
	if journal.IsSystemAccount(req.SenderID) || journal.IsSystemAccount(req.ReceiverID) {
		return Payment{}, apperr.Validation("system accounts cannot be parties")
	}
	if req.SenderID == req.ReceiverID {
		return Payment{}, apperr.Validation("sender and receiver must differ")
	}
	if req.Amount.Amount <= 0 {
		return Payment{}, apperr.Validation("amount must be positive")
	}
	cur, err := money.NormalizeCurrency(req.Amount.Currency)
	if err != nil {
		return Payment{}, apperr.Validation("%v", err)
	}
	if err := req.Metadata.Validate(); err != nil {
		return Payment{}, apperr.Validation("%v", err)
	}

	now := o.now()
	expires := req.ExpiresAt
	if expires == nil {
		t := now.Add(o.cfg.PaymentTTL)
		expires = &t
	} else if !expires.After(now) {
		return Payment{}, apperr.Validation("expires_at must be in the future")
	}

	code, err := NewConfirmationCode()
	if err != nil {
		return Payment{}, err
	}
	return Payment{
		ID:               uuid.NewString(),
		Type:             req.Type,
		State:            StatePending,
		Amount:           money.New(req.Amount.Amount, cur),
		SenderID:         req.SenderID,
		ReceiverID:       req.ReceiverID,
		LinkID:           req.LinkID,
		Description:      req.Description,
		Metadata:         req.Metadata.Clone(),
		IdempotencyKey:   req.IdempotencyKey,
		ConfirmationCode: code,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        expires,
	}, nil
}

// Result is the outcome of an idempotent operation.
// Persisted results are cached under the key; others may be retried.
type Result struct {
	Payment   Payment
	Err       error
	Persisted bool
}

// Once runs at most one execution of run per key: the idempotency guard first,
// then in-process collapse of concurrent callers, then the durable key index.
func (o *Orchestrator) Once(ctx context.Context, key string, run func(ctx context.Context) Result) (Payment, error) {
	var cached Outcome
	if o.guard.Check(ctx, key, &cached) {
		return cached.Payment, cached.Err()
	}

	v, _, _ := o.flight.Do(key, func() (any, error) {
		var again Outcome
		if o.guard.Check(ctx, key, &again) {
			return Result{Payment: again.Payment, Err: again.Err(), Persisted: true}, nil
		}
		existing, found, err := o.findByKey(ctx, key)
		if err != nil {
			return Result{Err: err}, nil
		}
		if found {
			r := Result{Payment: existing, Err: FailureOf(existing), Persisted: true}
			o.remember(ctx, key, r)
			return r, nil
		}
		r := run(ctx)
		if r.Persisted {
			o.remember(ctx, key, r)
		}
		return r, nil
	})
	r := v.(Result)
	return r.Payment, r.Err
}

func (o *Orchestrator) findByKey(ctx context.Context, key string) (Payment, bool, error) {
	var (
		p     Payment
		found bool
	)
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.GetPaymentByKey(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		p, found = got, true
		return nil
	})
	return p, found, err
}

func (o *Orchestrator) remember(ctx context.Context, key string, r Result) {
	if err := o.guard.Store(ctx, key, newOutcome(r.Payment, r.Err), o.cfg.IdempotencyTTL); err != nil {
		logger.From(ctx).Warn("idempotency result not stored", "key", key, "payment_id", r.Payment.ID, "err", err)
	}
}

// FailureOf rebuilds the business error carried by a failed payment.
func FailureOf(p Payment) error {
	if p.State != StateFailed {
		return nil
	}
	return apperr.FromCode(p.FailureCode, p.FailureReason)
}

// Create registers a payment. A repeated key returns the first result unchanged.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (Payment, error) {
	ctx, corr := o.trace(ctx)
	if req.IdempotencyKey == "" {
		return Payment{}, apperr.WithCorrelation(apperr.Validation("idempotency key is required"), corr)
	}

	p, err := o.Once(ctx, req.IdempotencyKey, func(ctx context.Context) Result {
		draft, err := o.Draft(req)
		if err != nil {
			return Result{Err: err}
		}
		return o.create(ctx, draft)
	})
	return p, apperr.WithCorrelation(err, corr)
}

func (o *Orchestrator) create(ctx context.Context, p Payment) Result {
	log := logger.From(ctx).With("payment_id", p.ID, "correlation_id", logger.CorrelationID(ctx))
	d := o.Screen(ctx, &p)

	switch d.Action {
	case fraud.ActionReject:
		cause := apperr.New(apperr.CodeFraudRejected, "%s", d.Reason)
		failed, err := o.RecordFailure(ctx, p, cause)
		if err != nil {
			return Result{Err: err}
		}
		log.Info("payment rejected by fraud gate", "reason", d.Reason)
		o.Publish(ctx, failed, events.PaymentCreated, events.PaymentFailed, events.FraudAlert)
		return Result{Payment: failed, Err: FailureOf(failed), Persisted: true}

	case fraud.ActionHold:
		draft := p
		err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.InsertPayment(ctx, &p); err != nil {
				return err
			}
			lines, err := o.placeHoldTx(ctx, tx, &p, o.fraudHoldAmount(p.Amount), HoldReasonFraud)
			if err != nil {
				return err
			}
			return o.record(ctx, tx, lines)
		})
		if errors.Is(err, ErrDuplicateKey) {
			return o.existing(ctx, p.IdempotencyKey)
		}
		if errors.Is(err, apperr.ErrInsufficientFunds) {
			failed, ferr := o.RecordFailure(ctx, draft, err)
			if ferr != nil {
				return Result{Err: ferr}
			}
			o.Publish(ctx, failed, events.PaymentCreated, events.PaymentFailed, events.FraudAlert)
			return Result{Payment: failed, Err: FailureOf(failed), Persisted: true}
		}
		if err != nil {
			return Result{Err: err}
		}
		log.Info("payment created with fraud hold", "held", p.HeldAmount())
		o.Publish(ctx, p, events.PaymentCreated, events.FraudAlert)
		return Result{Payment: p, Persisted: true}

	default:
		err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.InsertPayment(ctx, &p)
		})
		if errors.Is(err, ErrDuplicateKey) {
			return o.existing(ctx, p.IdempotencyKey)
		}
		if err != nil {
			return Result{Err: err}
		}
		names := []events.Name{events.PaymentCreated}
		if p.ReviewRequired {
			names = append(names, events.FraudAlert)
		}
		o.Publish(ctx, p, names...)
		return Result{Payment: p, Persisted: true}
	}
}

// existing resolves a key lost to a concurrent writer.
func (o *Orchestrator) existing(ctx context.Context, key string) Result {
	p, found, err := o.findByKey(ctx, key)
	if err != nil {
		return Result{Err: err}
	}
	if !found {
		return Result{Err: apperr.New(apperr.CodeConflict, "idempotency key %q in use", key)}
	}
	return Result{Payment: p, Err: FailureOf(p), Persisted: true}
}

// Screen consults the fraud gate and annotates p with the decision.
func (o *Orchestrator) Screen(ctx context.Context, p *Payment) fraud.Decision {
	d, err := o.gate.Evaluate(ctx, fraud.Request{
		PayerID: p.SenderID,
		Payment: fraud.PaymentSummary{
			ID:        p.ID,
			Type:      string(p.Type),
			Amount:    p.Amount,
			Timestamp: p.CreatedAt,
			Metadata:  p.Metadata,
		},
	})
	if err != nil {
		logger.From(ctx).Warn("fraud gate error; using default decision", "payment_id", p.ID, "err", err)
		d = fraud.DefaultDecision
	}
	score := d.Score
	p.RiskScore = &score
	if d.Action == fraud.ActionManualReview {
		p.ReviewRequired = true
	}
	return d
}

func (o *Orchestrator) fraudHoldAmount(m money.Money) money.Money {
	return m.Percent(o.cfg.HoldPercent).Min(money.New(o.cfg.HoldCap, m.Currency))
}

// Get returns the payment with its holds.
func (o *Orchestrator) Get(ctx context.Context, id string) (Payment, error) {
	ctx, corr := o.trace(ctx)
	var p Payment
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.GetPayment(ctx, id)
		p = got
		return err
	})
	return p, apperr.WithCorrelation(err, corr)
}

// Publish hands events to the external sinks. Delivery failures are logged, never returned.
// Only PaymentCreated on the notification sink carries the confirmation code,
// since that is how the payer receives it. Webhooks never carry it.
func (o *Orchestrator) Publish(ctx context.Context, p Payment, names ...events.Name) {
	redacted := p
	redacted.ConfirmationCode = ""
	now := o.now()
	for _, n := range names {
		ev := events.Event{
			ID:            uuid.NewString(),
			Name:          n,
			PaymentID:     p.ID,
			MerchantID:    p.MerchantID(),
			CorrelationID: logger.CorrelationID(ctx),
			OccurredAt:    now,
			Snapshot:      redacted,
		}
		if o.events != nil {
			notify := ev
			if n == events.PaymentCreated {
				notify.Snapshot = p
			}
			if err := o.events.Publish(ctx, notify); err != nil {
				logger.From(ctx).Warn("event publish failed", "event", n, "payment_id", p.ID, "err", err)
			}
		}
		if m := p.MerchantID(); m != "" && o.webhooks != nil && n != events.FraudAlert {
			if err := o.webhooks.PublishWebhook(ctx, m, ev); err != nil {
				logger.From(ctx).Warn("webhook publish failed", "event", n, "merchant_id", m, "err", err)
			}
		}
	}
}
