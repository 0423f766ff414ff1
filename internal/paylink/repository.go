package paylink

import (
	"context"
	"database/sql"
	"errors"

	"payment-platform/internal/apperr"
	"payment-platform/internal/payment"
	"payment-platform/pkg/utils"
)

type Repository interface {
	InsertLink(ctx context.Context, l Link) error
	GetLink(ctx context.Context, id string) (Link, error)
	GetLinkForUpdate(ctx context.Context, id string) (Link, error)
	UpdateLink(ctx context.Context, l Link) error
}

// Tx lets link redemption and the payment it creates commit together.
type Tx interface {
	payment.Tx
	Repository
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var ErrNotFound = &apperr.Error{Code: apperr.CodeNotFound, Message: "payment link not found"}

// SQLRepository implements Repository over Postgres.
type SQLRepository struct {
	q utils.Querier
}

func NewSQLRepository(q utils.Querier) *SQLRepository {
	return &SQLRepository{q: q}
}

const linkColumns = `
id, merchant_id, amount, currency, description, expires_at, max_uses,
current_uses, is_active, single_use, url, created_at, updated_at`

func (r *SQLRepository) InsertLink(ctx context.Context, l Link) error {
	const q = `
INSERT INTO payment_links (` + linkColumns + `
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
`
	_, err := r.q.ExecContext(ctx, q,
		l.ID,
		l.MerchantID,
		l.Amount,
		l.Currency,
		l.Description,
		l.ExpiresAt,
		l.MaxUses,
		l.CurrentUses,
		l.IsActive,
		l.SingleUse,
		l.URL,
		l.CreatedAt,
		l.UpdatedAt,
	)
	return err
}

func (r *SQLRepository) GetLink(ctx context.Context, id string) (Link, error) {
	return r.getLink(ctx, `SELECT `+linkColumns+` FROM payment_links WHERE id = $1`, id)
}

func (r *SQLRepository) GetLinkForUpdate(ctx context.Context, id string) (Link, error) {
	// Lock the link row so concurrent redemptions are counted one at a time.
	return r.getLink(ctx, `SELECT `+linkColumns+` FROM payment_links WHERE id = $1 FOR UPDATE`, id)
}

func (r *SQLRepository) getLink(ctx context.Context, q, id string) (Link, error) {
	var (
		l       Link
		maxUses sql.NullInt64
	)
	if err := r.q.QueryRowContext(ctx, q, id).Scan(
		&l.ID,
		&l.MerchantID,
		&l.Amount,
		&l.Currency,
		&l.Description,
		&l.ExpiresAt,
		&maxUses,
		&l.CurrentUses,
		&l.IsActive,
		&l.SingleUse,
		&l.URL,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Link{}, ErrNotFound
		}
		return Link{}, err
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		l.MaxUses = &n
	}
	return l, nil
}

func (r *SQLRepository) UpdateLink(ctx context.Context, l Link) error {
	const q = `
UPDATE payment_links
SET current_uses = $2, is_active = $3, updated_at = $4
WHERE id = $1
`
	_, err := r.q.ExecContext(ctx, q, l.ID, l.CurrentUses, l.IsActive, l.UpdatedAt)
	return err
}
