package payment

import (
	"context"
	"errors"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"
	"payment-platform/internal/events"
	"payment-platform/internal/journal"
	"payment-platform/internal/money"
	"payment-platform/internal/wallet"
	"payment-platform/pkg/logger"

	"github.com/google/uuid"
)

type DepositRequest struct {
	UserID         string
	Amount         money.Money
	Reference      string
	Metadata       attrs.Map
	IdempotencyKey string
}

// StageDeposit records an inbound deposit as pending funds awaiting external settlement.
func (o *Orchestrator) StageDeposit(ctx context.Context, req DepositRequest) (Payment, error) {
	ctx, corr := o.trace(ctx)
	p, err := o.systemDraft(TypeDeposit, journal.AccountSettlementClearing, req.UserID, req.Amount, req.Metadata, req.IdempotencyKey)
	if err != nil {
		return Payment{}, apperr.WithCorrelation(err, corr)
	}
	if req.Reference != "" {
		p.Metadata = p.Metadata.With("external_ref", req.Reference)
	}

	out, err := o.Once(ctx, req.IdempotencyKey, func(ctx context.Context) Result {
		err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.InsertPayment(ctx, &p); err != nil {
				return err
			}
			_, err := o.ledger.AddPending(ctx, tx, req.UserID, p.Amount, p.ID)
			return err
		})
		if errors.Is(err, ErrDuplicateKey) {
			return o.existing(ctx, req.IdempotencyKey)
		}
		if err != nil {
			return Result{Err: err}
		}
		o.Publish(ctx, p, events.PaymentCreated)
		return Result{Payment: p, Persisted: true}
	})
	return out, apperr.WithCorrelation(err, corr)
}

// SettleDeposit makes staged deposit funds available and journals them
// against the settlement clearing account.
func (o *Orchestrator) SettleDeposit(ctx context.Context, id string) (Payment, error) {
	ctx, corr := o.trace(ctx)
	p, err := o.mutate(ctx, id, false, func(ctx context.Context, tx Tx, p *Payment) error {
		if p.Type != TypeDeposit {
			return apperr.Validation("payment %s is not a deposit", p.ID)
		}
		now := o.now()
		if err := p.transition(StateProcessing, now); err != nil {
			return err
		}
		if _, err := o.ledger.ConfirmPending(ctx, tx, p.ReceiverID, p.Amount, p.ID); err != nil {
			return err
		}
		lines := journal.Transfer(journal.AccountSettlementClearing, journal.WalletAccount(p.ReceiverID), p.Amount, p.ID)
		if err := o.record(ctx, tx, lines); err != nil {
			return err
		}
		if err := p.transition(StateCompleted, now); err != nil {
			return err
		}
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return p, apperr.WithCorrelation(err, corr)
	}
	o.Publish(ctx, p, events.PaymentCompleted)
	return p, nil
}

type AdjustRequest struct {
	UserID         string
	Amount         money.Money
	Credit         bool
	Reason         string
	AdminID        string
	IdempotencyKey string
}

// Adjust credits or debits a wallet against the adjustments account.
// It is recorded as a completed payment so the key stays durable.
func (o *Orchestrator) Adjust(ctx context.Context, req AdjustRequest) (Payment, error) {
	ctx, corr := o.trace(ctx)
	if req.Reason == "" || req.AdminID == "" {
		return Payment{}, apperr.WithCorrelation(apperr.Validation("reason and admin are required"), corr)
	}
	sender, receiver := journal.AccountAdjustments, req.UserID
	if !req.Credit {
		sender, receiver = req.UserID, journal.AccountAdjustments
	}
	meta := attrs.Map{"admin_id": req.AdminID, "reason": req.Reason}
	p, err := o.systemDraft(TypeAdjustment, sender, receiver, req.Amount, meta, req.IdempotencyKey)
	if err != nil {
		return Payment{}, apperr.WithCorrelation(err, corr)
	}

	out, err := o.Once(ctx, req.IdempotencyKey, func(ctx context.Context) Result {
		err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.InsertPayment(ctx, &p); err != nil {
				return err
			}
			now := o.now()
			if err := p.transition(StateProcessing, now); err != nil {
				return err
			}
			var err error
			if req.Credit {
				_, err = o.ledger.CreditAvailable(ctx, tx, req.UserID, p.Amount, p.ID)
			} else {
				_, err = o.ledger.DebitAvailable(ctx, tx, req.UserID, p.Amount, p.ID)
			}
			if err != nil {
				return err
			}
			if err := o.record(ctx, tx, journal.Adjust(journal.WalletAccount(req.UserID), p.Amount, req.Credit, p.ID)); err != nil {
				return err
			}
			if err := p.transition(StateCompleted, now); err != nil {
				return err
			}
			return tx.UpdatePayment(ctx, &p)
		})
		if errors.Is(err, ErrDuplicateKey) {
			return o.existing(ctx, req.IdempotencyKey)
		}
		if err != nil {
			return Result{Err: err}
		}
		logger.From(ctx).Info("wallet adjusted", "user_id", req.UserID, "credit", req.Credit, "amount", p.Amount.String(), "admin_id", req.AdminID)
		return Result{Payment: p, Persisted: true}
	})
	return out, apperr.WithCorrelation(err, corr)
}

// systemDraft builds a payment where one side is a platform account.
func (o *Orchestrator) systemDraft(t Type, sender, receiver string, amount money.Money, meta attrs.Map, key string) (Payment, error) {
	user := sender
	if journal.IsSystemAccount(sender) {
		user = receiver
	}
	if user == "" || journal.IsSystemAccount(user) {
		return Payment{}, apperr.Validation("user is required")
	}
	if key == "" {
		return Payment{}, apperr.Validation("idempotency key is required")
	}
	if amount.Amount <= 0 {
		return Payment{}, apperr.Validation("amount must be positive")
	}
	cur, err := money.NormalizeCurrency(amount.Currency)
	if err != nil {
		return Payment{}, apperr.Validation("%v", err)
	}
	if err := meta.Validate(); err != nil {
		return Payment{}, apperr.Validation("%v", err)
	}
	now := o.now()
	return Payment{
		ID:             uuid.NewString(),
		Type:           t,
		State:          StatePending,
		Amount:         money.New(amount.Amount, cur),
		SenderID:       sender,
		ReceiverID:     receiver,
		Metadata:       meta.Clone(),
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetWallet returns the user's wallet and balances. A user who never
// transacted gets an empty active wallet.
func (o *Orchestrator) GetWallet(ctx context.Context, userID string) (wallet.Wallet, []wallet.Balance, error) {
	var (
		w        wallet.Wallet
		balances []wallet.Balance
	)
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		w, balances, err = tx.GetWallet(ctx, userID)
		return err
	})
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return wallet.Wallet{UserID: userID, IsActive: true}, nil, nil
	}
	return w, balances, err
}

// JournalBalance derives an account balance from journal entries up to asOf.
func (o *Orchestrator) JournalBalance(ctx context.Context, accountID, currency string, asOf time.Time) (journal.AccountBalance, error) {
	var b journal.AccountBalance
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		b, err = o.journal.Balance(ctx, tx, accountID, currency, asOf)
		return err
	})
	return b, err
}

// VerifyAccount returns ids of entries on the account whose signatures do not match.
func (o *Orchestrator) VerifyAccount(ctx context.Context, accountID, currency string) ([]string, error) {
	var bad []string
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		bad, err = o.journal.VerifyAccount(ctx, tx, accountID, currency)
		return err
	})
	return bad, err
}
