package payment

import (
	"context"
	"errors"

	"payment-platform/internal/apperr"
	"payment-platform/internal/events"
	"payment-platform/pkg/logger"
)

// settleable reports whether p may be settled through the orchestrator's own
// entry points. Link payments settle only inside the link issuer's transaction,
// which locks the link and counts the use; a failed one is paid again through
// the link under a new key.
func settleable(p Payment) error {
	switch p.Type {
	case TypeDirect, TypeWithdrawal:
		return nil
	case TypePaymentLink:
		return apperr.New(apperr.CodeInvalidStateTransition, "payment %s belongs to link %s; pay the link again instead", p.ID, p.LinkID)
	default:
		return apperr.Validation("payment %s of type %s cannot be processed", p.ID, p.Type)
	}
}

// settleOrFail runs a settlement step. If the step fails after settlement
// started, the transaction is gone and the payment is recorded as Failed in a
// second transaction, so it is never left in Processing.
func (o *Orchestrator) settleOrFail(ctx context.Context, id string, pre func(p Payment) error, step func(ctx context.Context, tx Tx, p *Payment) error) (Payment, error) {
	_, corr := o.trace(ctx)
	var started bool
	p, err := o.mutate(ctx, id, true, func(ctx context.Context, tx Tx, p *Payment) error {
		if err := pre(*p); err != nil {
			return err
		}
		started = true
		return step(ctx, tx, p)
	})
	if err == nil {
		return p, nil
	}
	if !started || errors.Is(err, apperr.ErrPaymentExpired) {
		return p, apperr.WithCorrelation(err, corr)
	}

	cur, gerr := o.Get(ctx, id)
	if gerr != nil {
		return Payment{}, apperr.WithCorrelation(err, corr)
	}
	failed, ferr := o.RecordFailure(ctx, cur, err)
	if ferr != nil {
		return cur, apperr.WithCorrelation(apperr.Wrap(apperr.CodeLedgerWriteFailure, err, "settlement failed"), corr)
	}
	o.Publish(ctx, failed, events.PaymentFailed)
	return failed, apperr.WithCorrelation(FailureOf(failed), corr)
}

// Process settles a Pending payment: debit sender, credit receiver, journal, Completed.
func (o *Orchestrator) Process(ctx context.Context, id string) (Payment, error) {
	ctx, _ = o.trace(ctx)
	p, err := o.settleOrFail(ctx, id,
		func(p Payment) error {
			if p.State != StatePending {
				return invalidState(p, StateProcessing)
			}
			return settleable(p)
		},
		o.settleTx,
	)
	if err != nil {
		return p, err
	}
	logger.From(ctx).Info("payment completed", "payment_id", p.ID, "amount", p.Amount.String())
	o.Publish(ctx, p, events.PaymentCompleted)
	return p, nil
}

// Retry re-runs settlement for a payment that failed on funds or a ledger write.
func (o *Orchestrator) Retry(ctx context.Context, id string) (Payment, error) {
	ctx, _ = o.trace(ctx)
	p, err := o.settleOrFail(ctx, id,
		func(p Payment) error {
			if !p.Retryable() {
				return apperr.New(apperr.CodeInvalidStateTransition, "payment %s (%s, %s) is not retryable", p.ID, p.State, p.FailureCode)
			}
			return settleable(p)
		},
		o.settleTx,
	)
	if err != nil {
		return p, err
	}
	o.Publish(ctx, p, events.PaymentCompleted)
	return p, nil
}

// Authorize holds the full amount and moves the payment to PendingConfirmation.
func (o *Orchestrator) Authorize(ctx context.Context, id string) (Payment, error) {
	ctx, _ = o.trace(ctx)
	return o.settleOrFail(ctx, id,
		func(p Payment) error {
			if p.State != StatePending {
				return invalidState(p, StatePendingConfirmation)
			}
			return settleable(p)
		},
		func(ctx context.Context, tx Tx, p *Payment) error {
			if err := p.transition(StatePendingConfirmation, o.now()); err != nil {
				return err
			}
			// A pending fraud hold is folded into the authorization hold.
			lines, err := o.releaseHoldsTx(ctx, tx, p)
			if err != nil {
				return err
			}
			hold, err := o.placeHoldTx(ctx, tx, p, p.Amount, HoldReasonAuthorization)
			if err != nil {
				return err
			}
			if err := o.record(ctx, tx, append(lines, hold...)); err != nil {
				return err
			}
			return tx.UpdatePayment(ctx, p)
		},
	)
}

// Capture settles an authorized payment. A failed capture leaves the payment
// in PendingConfirmation with its funds still held.
func (o *Orchestrator) Capture(ctx context.Context, id string) (Payment, error) {
	ctx, corr := o.trace(ctx)
	var started bool
	p, err := o.mutate(ctx, id, true, func(ctx context.Context, tx Tx, p *Payment) error {
		if p.State != StatePendingConfirmation {
			return invalidState(*p, StateCompleted)
		}
		started = true
		return o.settleTx(ctx, tx, p)
	})
	if err != nil {
		if started && !errors.Is(err, apperr.ErrPaymentExpired) {
			logger.From(ctx).Error("capture failed", "payment_id", id, "err", err)
			if apperr.CodeOf(err) != apperr.CodeLedgerWriteFailure {
				err = apperr.Wrap(apperr.CodeLedgerWriteFailure, err, "capture failed")
			}
			cur, gerr := o.Get(ctx, id)
			if gerr != nil {
				logger.From(ctx).Error("reload after failed capture", "payment_id", id, "err", gerr)
				return Payment{ID: id, State: StatePendingConfirmation}, apperr.WithCorrelation(err, corr)
			}
			return cur, apperr.WithCorrelation(err, corr)
		}
		return p, apperr.WithCorrelation(err, corr)
	}
	o.Publish(ctx, p, events.PaymentCompleted)
	return p, nil
}

// Confirm checks the confirmation code and then settles the payment.
// A mismatch is reported to the fraud gate and leaves the payment untouched.
func (o *Orchestrator) Confirm(ctx context.Context, id, code string) (Payment, error) {
	ctx, corr := o.trace(ctx)
	p, err := o.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if !codesMatch(p.ConfirmationCode, code) {
		if rerr := o.gate.ReportFailedConfirmation(ctx, p.SenderID, p.ID); rerr != nil {
			logger.From(ctx).Warn("failed confirmation not reported", "payment_id", p.ID, "err", rerr)
		}
		return p, apperr.WithCorrelation(apperr.New(apperr.CodeConfirmationMismatch, "confirmation code mismatch"), corr)
	}
	if p.State == StatePendingConfirmation {
		return o.Capture(ctx, id)
	}
	return o.Process(ctx, id)
}

// Cancel moves a non-terminal, non-completed payment to Cancelled and releases its holds.
func (o *Orchestrator) Cancel(ctx context.Context, id, reason string) (Payment, error) {
	ctx, corr := o.trace(ctx)
	p, err := o.mutate(ctx, id, false, func(ctx context.Context, tx Tx, p *Payment) error {
		wasPending := p.State == StatePending
		if err := p.transition(StateCancelled, o.now()); err != nil {
			return err
		}
		lines, err := o.releaseHoldsTx(ctx, tx, p)
		if err != nil {
			return err
		}
		if p.Type == TypeDeposit && wasPending {
			if _, err := o.ledger.CancelPending(ctx, tx, p.ReceiverID, p.Amount, p.ID); err != nil {
				return err
			}
		}
		if err := o.record(ctx, tx, lines); err != nil {
			return err
		}
		p.CancellationReason = reason
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return p, apperr.WithCorrelation(err, corr)
	}
	logger.From(ctx).Info("payment cancelled", "payment_id", id, "reason", reason)
	return p, nil
}

// Refund reverses a completed payment within the refund window.
func (o *Orchestrator) Refund(ctx context.Context, id string) (Payment, error) {
	ctx, corr := o.trace(ctx)
	p, err := o.mutate(ctx, id, false, func(ctx context.Context, tx Tx, p *Payment) error {
		if p.State != StateCompleted {
			return invalidState(*p, StateRefunded)
		}
		if p.Type == TypeAdjustment {
			return apperr.Validation("adjustments cannot be refunded")
		}
		if p.CompletedAt == nil || o.now().Sub(*p.CompletedAt) > o.cfg.RefundWindow {
			return apperr.New(apperr.CodeRefundWindowClosed, "payment %s completed outside the refund window", p.ID)
		}
		return o.reverseTx(ctx, tx, p, StateRefunded)
	})
	if err != nil {
		return p, apperr.WithCorrelation(err, corr)
	}
	o.Publish(ctx, p, events.PaymentRefunded)
	return p, nil
}

// Chargeback reverses a completed payment; it is not time-windowed.
func (o *Orchestrator) Chargeback(ctx context.Context, id, reason string) (Payment, error) {
	ctx, corr := o.trace(ctx)
	p, err := o.mutate(ctx, id, false, func(ctx context.Context, tx Tx, p *Payment) error {
		if p.State != StateCompleted {
			return invalidState(*p, StateChargeback)
		}
		if p.Type == TypeAdjustment {
			return apperr.Validation("adjustments cannot be charged back")
		}
		p.CancellationReason = reason
		return o.reverseTx(ctx, tx, p, StateChargeback)
	})
	if err != nil {
		return p, apperr.WithCorrelation(err, corr)
	}
	logger.From(ctx).Warn("payment charged back", "payment_id", id, "reason", reason)
	o.Publish(ctx, p, events.PaymentChargedBack)
	return p, nil
}

// ExpireStale moves up to limit overdue Pending/PendingConfirmation payments to Expired.
func (o *Orchestrator) ExpireStale(ctx context.Context, limit int) (int, error) {
	ctx, _ = o.trace(ctx)
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		ids, err = tx.ListExpirable(ctx, o.now(), limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		_, err := o.mutate(ctx, id, true, func(ctx context.Context, tx Tx, p *Payment) error { return nil })
		switch {
		case errors.Is(err, apperr.ErrPaymentExpired):
			n++
		case err != nil:
			logger.From(ctx).Warn("expire payment failed", "payment_id", id, "err", err)
		}
	}
	return n, nil
}
