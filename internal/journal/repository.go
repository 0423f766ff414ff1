package journal

import (
	"context"
	"time"

	"payment-platform/pkg/utils"
)

// NOTE: journal_entries is append-only. A trigger rejects UPDATE and DELETE
// so that nothing outside this package can rewrite history either.

// SQLRepository implements Repository over Postgres.
type SQLRepository struct {
	q utils.Querier
}

func NewSQLRepository(q utils.Querier) *SQLRepository {
	return &SQLRepository{q: q}
}

func (r *SQLRepository) InsertEntries(ctx context.Context, entries []Entry) error {
	const q = `
INSERT INTO journal_entries (
  id, kind, side, amount, currency, account_id, payment_id, reference_id,
  ts, metadata, signature, version, correlation_id, request_id
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
`
	for _, e := range entries {
		if _, err := r.q.ExecContext(ctx, q,
			e.ID,
			e.Kind,
			e.Side,
			e.Amount,
			e.Currency,
			e.AccountID,
			e.PaymentID,
			e.ReferenceID,
			e.Timestamp,
			e.Metadata,
			e.Signature,
			e.Version,
			e.CorrelationID,
			e.RequestID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLRepository) ListEntries(ctx context.Context, accountID, currency string, asOf time.Time) ([]Entry, error) {
	const q = `
SELECT id, kind, side, amount, currency, account_id, payment_id, reference_id,
       ts, metadata, signature, version, correlation_id, request_id
FROM journal_entries
WHERE account_id = $1 AND currency = $2 AND ts <= $3
ORDER BY ts, id
`
	rows, err := r.q.QueryContext(ctx, q, accountID, currency, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.Kind,
			&e.Side,
			&e.Amount,
			&e.Currency,
			&e.AccountID,
			&e.PaymentID,
			&e.ReferenceID,
			&e.Timestamp,
			&e.Metadata,
			&e.Signature,
			&e.Version,
			&e.CorrelationID,
			&e.RequestID,
		); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
