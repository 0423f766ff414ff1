package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/journal"
	"payment-platform/internal/money"
	"payment-platform/internal/wallet"
	"payment-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the per-transaction persistence contract for payments and holds.
type Repository interface {
	// InsertPayment returns ErrDuplicateKey when the idempotency key is taken.
	InsertPayment(ctx context.Context, p *Payment) error
	// UpdatePayment persists p and bumps p.Version; ErrStaleVersion on a lost race.
	UpdatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, id string) (Payment, error)
	GetPaymentByKey(ctx context.Context, key string) (Payment, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]string, error)
	InsertHold(ctx context.Context, h Hold) error
	UpdateHold(ctx context.Context, h Hold) error
}

// Tx is everything one atomic payment step touches.
type Tx interface {
	Repository
	wallet.Repository
	wallet.Reader
	journal.Repository
}

// TxRunner runs fn in a single store transaction; fn's error rolls everything back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var (
	ErrDuplicateKey = errors.New("payment: idempotency key already used")
	ErrStaleVersion = errors.New("payment: stale version")
	ErrNotFound     = &apperr.Error{Code: apperr.CodeNotFound, Message: "payment not found"}
)

// IsUniqueViolation reports a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SQLRepository implements Repository over Postgres.
type SQLRepository struct {
	q utils.Querier
}

func NewSQLRepository(q utils.Querier) *SQLRepository {
	return &SQLRepository{q: q}
}

const paymentColumns = `
id, type, state, amount, currency, sender_id, receiver_id, link_id, description, metadata,
idempotency_key, confirmation_code, failure_code, failure_reason, cancellation_reason,
risk_score, review_required, created_at, updated_at, completed_at, expires_at, version`

func (r *SQLRepository) InsertPayment(ctx context.Context, p *Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
)
`
	_, err := r.q.ExecContext(ctx, q,
		p.ID,
		p.Type,
		p.State,
		p.Amount.Amount,
		p.Amount.Currency,
		p.SenderID,
		p.ReceiverID,
		p.LinkID,
		p.Description,
		p.Metadata,
		p.IdempotencyKey,
		p.ConfirmationCode,
		p.FailureCode,
		p.FailureReason,
		p.CancellationReason,
		p.RiskScore,
		p.ReviewRequired,
		p.CreatedAt,
		p.UpdatedAt,
		p.CompletedAt,
		p.ExpiresAt,
		p.Version,
	)
	if IsUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r *SQLRepository) UpdatePayment(ctx context.Context, p *Payment) error {
	const q = `
UPDATE payments
SET state = $2, failure_code = $3, failure_reason = $4, cancellation_reason = $5,
    risk_score = $6, review_required = $7, updated_at = $8, completed_at = $9,
    version = version + 1
WHERE id = $1 AND version = $10
`
	res, err := r.q.ExecContext(ctx, q,
		p.ID,
		p.State,
		p.FailureCode,
		p.FailureReason,
		p.CancellationReason,
		p.RiskScore,
		p.ReviewRequired,
		p.UpdatedAt,
		p.CompletedAt,
		p.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	p.Version++
	return nil
}

func (r *SQLRepository) GetPayment(ctx context.Context, id string) (Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *SQLRepository) GetPaymentForUpdate(ctx context.Context, id string) (Payment, error) {
	// Lock the payment row to serialize state transitions per payment.
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *SQLRepository) GetPaymentByKey(ctx context.Context, key string) (Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key)
}

func (r *SQLRepository) getPayment(ctx context.Context, q string, arg string) (Payment, error) {
	var (
		p        Payment
		amount   int64
		currency string
	)
	if err := r.q.QueryRowContext(ctx, q, arg).Scan(
		&p.ID,
		&p.Type,
		&p.State,
		&amount,
		&currency,
		&p.SenderID,
		&p.ReceiverID,
		&p.LinkID,
		&p.Description,
		&p.Metadata,
		&p.IdempotencyKey,
		&p.ConfirmationCode,
		&p.FailureCode,
		&p.FailureReason,
		&p.CancellationReason,
		&p.RiskScore,
		&p.ReviewRequired,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.CompletedAt,
		&p.ExpiresAt,
		&p.Version,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	p.Amount = money.New(amount, currency)

	holds, err := r.listHolds(ctx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	p.Holds = holds
	return p, nil
}

func (r *SQLRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const q = `
SELECT id FROM payments
WHERE state IN ('pending', 'pending_confirmation') AND expires_at IS NOT NULL AND expires_at < $1
ORDER BY expires_at
LIMIT $2
`
	rows, err := r.q.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLRepository) InsertHold(ctx context.Context, h Hold) error {
	const q = `
INSERT INTO payment_holds (id, payment_id, amount, currency, reason, release_at, is_released, created_at, released_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.q.ExecContext(ctx, q, h.ID, h.PaymentID, h.Amount, h.Currency, h.Reason, h.ReleaseAt, h.IsReleased, h.CreatedAt, h.ReleasedAt)
	return err
}

func (r *SQLRepository) UpdateHold(ctx context.Context, h Hold) error {
	// A released hold is never reopened.
	const q = `
UPDATE payment_holds
SET is_released = $2, released_at = $3
WHERE id = $1 AND is_released = FALSE
`
	res, err := r.q.ExecContext(ctx, q, h.ID, h.IsReleased, h.ReleasedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.CodeConflict, "hold %s already released", h.ID)
	}
	return nil
}

func (r *SQLRepository) listHolds(ctx context.Context, paymentID string) ([]Hold, error) {
	const q = `
SELECT id, payment_id, amount, currency, reason, release_at, is_released, created_at, released_at
FROM payment_holds
WHERE payment_id = $1
ORDER BY created_at, id
`
	rows, err := r.q.QueryContext(ctx, q, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hold
	for rows.Next() {
		var h Hold
		if err := rows.Scan(&h.ID, &h.PaymentID, &h.Amount, &h.Currency, &h.Reason, &h.ReleaseAt, &h.IsReleased, &h.CreatedAt, &h.ReleasedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
