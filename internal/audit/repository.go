package audit

import (
	"context"

	"payment-platform/pkg/utils"
)

// SQLRepository appends events to audit_events. The table rejects UPDATE and
// DELETE with a trigger, so there is nothing here but an insert.
type SQLRepository struct {
	q utils.Querier
}

func NewSQLRepository(q utils.Querier) *SQLRepository {
	return &SQLRepository{q: q}
}

func (r *SQLRepository) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_role, ip_address, payment_id, target_user_id,
  link_id, message, metadata, correlation_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err := r.q.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.PaymentID,
		e.TargetUserID,
		e.LinkID,
		e.Message,
		e.Metadata,
		e.CorrelationID,
		e.CreatedAt,
	)
	return err
}
