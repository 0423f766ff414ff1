package payment

import (
	"context"
	"errors"

	"payment-platform/internal/apperr"
	"payment-platform/internal/journal"
	"payment-platform/internal/money"
	"payment-platform/pkg/logger"

	"github.com/google/uuid"
)

// record commits lines as one journal transaction tagged with the request id.
func (o *Orchestrator) record(ctx context.Context, tx Tx, lines []journal.Line) error {
	if len(lines) == 0 {
		return nil
	}
	if _, err := o.journal.Record(ctx, tx, logger.CorrelationID(ctx), lines); err != nil {
		return apperr.Wrap(apperr.CodeLedgerWriteFailure, err, "journal write failed")
	}
	return nil
}

// placeHoldTx reserves m on the sender and attaches a new hold to p.
func (o *Orchestrator) placeHoldTx(ctx context.Context, tx Tx, p *Payment, m money.Money, reason string) ([]journal.Line, error) {
	if !m.IsPositive() {
		return nil, nil
	}
	if p.HeldAmount()+m.Amount > p.Amount.Amount {
		return nil, apperr.New(apperr.CodeConflict, "payment %s: holds would exceed amount", p.ID)
	}
	h := Hold{
		ID:        uuid.NewString(),
		PaymentID: p.ID,
		Amount:    m.Amount,
		Currency:  m.Currency,
		Reason:    reason,
		CreatedAt: o.now(),
	}
	if _, err := o.ledger.HoldFunds(ctx, tx, p.SenderID, m, h.ID, reason); err != nil {
		return nil, err
	}
	if err := tx.InsertHold(ctx, h); err != nil {
		return nil, err
	}
	p.Holds = append(p.Holds, h)
	return journal.Hold(p.senderAccount(), m, p.ID, h.ID), nil
}

func (o *Orchestrator) markReleased(ctx context.Context, tx Tx, h *Hold) error {
	now := o.now()
	h.IsReleased = true
	h.ReleasedAt = &now
	return tx.UpdateHold(ctx, *h)
}

// releaseHoldsTx returns every open hold on p to the sender's available funds.
func (o *Orchestrator) releaseHoldsTx(ctx context.Context, tx Tx, p *Payment) ([]journal.Line, error) {
	var lines []journal.Line
	for _, i := range p.OpenHolds() {
		h := &p.Holds[i]
		if _, err := o.ledger.ReleaseHeldFunds(ctx, tx, p.SenderID, h.Money(), h.ID); err != nil {
			return nil, err
		}
		if err := o.markReleased(ctx, tx, h); err != nil {
			return nil, err
		}
		lines = append(lines, journal.Release(p.senderAccount(), h.Money(), p.ID, h.ID)...)
	}
	return lines, nil
}

// lockParties locks the sender and receiver wallets in a fixed order.
func (o *Orchestrator) lockParties(ctx context.Context, tx Tx, p *Payment) error {
	var ids []string
	for _, id := range []string{p.SenderID, p.ReceiverID} {
		if isWallet(id) {
			ids = append(ids, id)
		}
	}
	return o.ledger.LockAll(ctx, tx, p.Amount.Currency, ids...)
}

// settleTx moves the funds and completes p. Authorization holds are captured;
// other holds are released before the sender is debited for the remainder.
// The caller's transaction must roll back on error.
func (o *Orchestrator) settleTx(ctx context.Context, tx Tx, p *Payment) error {
	now := o.now()
	if p.State != StatePendingConfirmation {
		if err := p.transition(StateProcessing, now); err != nil {
			return err
		}
	}

	if err := o.lockParties(ctx, tx, p); err != nil {
		return err
	}

	var (
		lines    []journal.Line
		captured int64
	)
	from, to := p.senderAccount(), p.counterpartyAccount()

	for _, i := range p.OpenHolds() {
		h := &p.Holds[i]
		if h.Reason == HoldReasonAuthorization {
			if _, err := o.ledger.CaptureHeldFunds(ctx, tx, p.SenderID, h.Money(), h.ID); err != nil {
				return err
			}
			lines = append(lines, journal.Capture(from, to, h.Money(), p.ID, h.ID)...)
			captured += h.Amount
		} else {
			if _, err := o.ledger.ReleaseHeldFunds(ctx, tx, p.SenderID, h.Money(), h.ID); err != nil {
				return err
			}
			lines = append(lines, journal.Release(from, h.Money(), p.ID, h.ID)...)
		}
		if err := o.markReleased(ctx, tx, h); err != nil {
			return err
		}
	}

	if rest := p.Amount.Amount - captured; rest > 0 {
		m := money.New(rest, p.Amount.Currency)
		if isWallet(p.SenderID) {
			if _, err := o.ledger.DebitAvailable(ctx, tx, p.SenderID, m, p.ID); err != nil {
				return err
			}
		}
		lines = append(lines, journal.Transfer(from, to, m, p.ID)...)
	}
	if isWallet(p.ReceiverID) {
		if _, err := o.ledger.CreditAvailable(ctx, tx, p.ReceiverID, p.Amount, p.ID); err != nil {
			return err
		}
	}
	if err := o.record(ctx, tx, lines); err != nil {
		return err
	}
	if err := p.transition(StateCompleted, now); err != nil {
		return err
	}
	return tx.UpdatePayment(ctx, p)
}

// reverseTx undoes a completed settlement and moves p to target (Refunded or Chargeback).
// The receiver is debited first and fails with InsufficientFunds if the funds are gone.
func (o *Orchestrator) reverseTx(ctx context.Context, tx Tx, p *Payment, target State) error {
	if err := p.transition(target, o.now()); err != nil {
		return err
	}
	if err := o.lockParties(ctx, tx, p); err != nil {
		return err
	}
	if isWallet(p.ReceiverID) {
		if _, err := o.ledger.DebitAvailable(ctx, tx, p.ReceiverID, p.Amount, p.ID); err != nil {
			return err
		}
	}
	if isWallet(p.SenderID) {
		if _, err := o.ledger.CreditAvailable(ctx, tx, p.SenderID, p.Amount, p.ID); err != nil {
			return err
		}
	}
	lines := journal.Reverse(p.senderAccount(), p.counterpartyAccount(), p.Amount, p.ID, string(target))
	if err := o.record(ctx, tx, lines); err != nil {
		return err
	}
	return tx.UpdatePayment(ctx, p)
}

// expireTx releases holds and moves p to Expired.
func (o *Orchestrator) expireTx(ctx context.Context, tx Tx, p *Payment) error {
	if err := p.transition(StateExpired, o.now()); err != nil {
		return err
	}
	lines, err := o.releaseHoldsTx(ctx, tx, p)
	if err != nil {
		return err
	}
	if err := o.record(ctx, tx, lines); err != nil {
		return err
	}
	return tx.UpdatePayment(ctx, p)
}

// mutate locks payment id and runs fn in one transaction. When checkExpiry is
// set and the payment is past its deadline, it is moved to Expired and
// committed instead of running fn, and ErrPaymentExpired is returned.
func (o *Orchestrator) mutate(ctx context.Context, id string, checkExpiry bool, fn func(ctx context.Context, tx Tx, p *Payment) error) (Payment, error) {
	var (
		out     Payment
		expired bool
	)
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if checkExpiry && p.Expired(o.now()) {
			if err := o.expireTx(ctx, tx, &p); err != nil {
				return err
			}
			out, expired = p, true
			return nil
		}
		if err := fn(ctx, tx, &p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	if expired {
		logger.From(ctx).Info("payment expired", "payment_id", id)
		return out, apperr.New(apperr.CodePaymentExpired, "payment %s expired", id)
	}
	return out, nil
}

// Admit inserts a drafted payment inside the caller's transaction.
func (o *Orchestrator) Admit(ctx context.Context, tx Tx, p *Payment) error {
	return tx.InsertPayment(ctx, p)
}

// SettleTx completes an admitted Pending payment inside the caller's transaction.
func (o *Orchestrator) SettleTx(ctx context.Context, tx Tx, p *Payment) error {
	if p.State != StatePending {
		return invalidState(*p, StateProcessing)
	}
	return o.settleTx(ctx, tx, p)
}

// failureCode classifies a settlement error for the payment record.
func failureCode(cause error) apperr.Code {
	switch apperr.CodeOf(cause) {
	case apperr.CodeInsufficientFunds, apperr.CodeFraudRejected:
		return apperr.CodeOf(cause)
	default:
		return apperr.CodeLedgerWriteFailure
	}
}

// RecordFailure persists p as Failed with a reason derived from cause.
// If p was never saved (its settlement rolled back with it), it is inserted.
// The returned error reports only storage problems.
func (o *Orchestrator) RecordFailure(ctx context.Context, p Payment, cause error) (Payment, error) {
	code := failureCode(cause)
	reason := string(code)
	var ae *apperr.Error
	if errors.As(cause, &ae) && ae.Message != "" {
		reason = ae.Message
	}

	var out Payment
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetPaymentForUpdate(ctx, p.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			cur = p
			cur.Holds = nil
			if err := cur.fail(code, reason, o.now()); err != nil {
				return err
			}
			if err := tx.InsertPayment(ctx, &cur); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := cur.fail(code, reason, o.now()); err != nil {
				return err
			}
			if err := tx.UpdatePayment(ctx, &cur); err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	if errors.Is(err, ErrDuplicateKey) {
		r := o.existing(ctx, p.IdempotencyKey)
		return r.Payment, nil
	}
	if err != nil {
		logger.From(ctx).Error("failed to record payment failure", "payment_id", p.ID, "cause", cause, "err", err)
		return Payment{}, err
	}
	logger.From(ctx).Warn("payment failed", "payment_id", p.ID, "failure_code", code, "cause", cause)
	return out, nil
}

func invalidState(p Payment, to State) error {
	return apperr.New(apperr.CodeInvalidStateTransition, "payment %s: %s -> %s not allowed", p.ID, p.State, to)
}
