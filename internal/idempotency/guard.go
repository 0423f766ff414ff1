package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/pkg/logger"
)

const DefaultTTL = 24 * time.Hour

// Record is the persisted association between a caller key and a prior result.
type Record struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (r Record) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

// Store is the backing store contract. Implementations report outages as errors;
// the Guard decides how to degrade.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	// PutIfAbsent stores rec for ttl unless a live record already exists; it
	// reports whether rec was stored. ttl is measured on the Guard's clock and
	// agrees with rec.ExpiresAt.
	PutIfAbsent(ctx context.Context, rec Record, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

var ErrEmptyKey = errors.New("idempotency: key is required")

// Guard suppresses re-execution of side effects for a repeated key.
//
// Check fails open: when the store is unreachable it reports "no record" and
// logs IDEMPOTENCY_STORE_UNAVAILABLE. Under such an outage a retried request
// may execute twice; durable uniqueness (e.g. a unique index on the key) is the
// second line of defense.
type Guard struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	clock   func() time.Time
}

func NewGuard(store Store, ttl, timeout time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Guard{store: store, ttl: ttl, timeout: timeout, clock: time.Now}
}

// WithClock replaces the clock (tests).
func (g *Guard) WithClock(clock func() time.Time) *Guard {
	g.clock = clock
	return g
}

// Check decodes a live cached result for key into out and reports whether one existed.
func (g *Guard) Check(ctx context.Context, key string, out any) bool {
	if key == "" {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	rec, ok, err := g.store.Get(cctx, key)
	if err != nil {
		logger.From(ctx).Warn("idempotency store unavailable; failing open",
			"code", apperr.CodeIdempotencyUnavailable,
			"key", key,
			"err", err,
		)
		return false
	}
	if !ok || rec.Expired(g.clock()) {
		return false
	}
	if err := json.Unmarshal(rec.Payload, out); err != nil {
		logger.From(ctx).Error("idempotency record undecodable", "key", key, "err", err)
		return false
	}
	return true
}

// Store associates v with key for ttl (DefaultTTL when zero).
// The first writer wins; a later Store for a live key is a no-op.
func (g *Guard) Store(ctx context.Context, key string, v any, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = g.ttl
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("idempotency: encode result: %w", err)
	}
	now := g.clock().UTC()

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := g.store.PutIfAbsent(cctx, Record{
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, ttl); err != nil {
		return apperr.Wrap(apperr.CodeIdempotencyUnavailable, err, "idempotency: store result")
	}
	return nil
}

func (g *Guard) Invalidate(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.store.Delete(cctx, key)
}

// Cleanup removes expired records and returns how many were removed.
func (g *Guard) Cleanup(ctx context.Context) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.store.DeleteExpired(cctx, g.clock().UTC())
}
