package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-platform/internal/apperr"

	"github.com/redis/go-redis/v9"
)

type result struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

func TestGuard_StoreThenCheckReturnsSameResult(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryStore(), time.Hour, time.Second)

	var miss result
	if g.Check(ctx, "k1", &miss) {
		t.Fatalf("expected miss on empty store")
	}
	if err := g.Store(ctx, "k1", result{PaymentID: "p1", Amount: 30000}, 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	var got result
	if !g.Check(ctx, "k1", &got) {
		t.Fatalf("expected hit")
	}
	if got.PaymentID != "p1" || got.Amount != 30000 {
		t.Fatalf("unexpected cached result %+v", got)
	}
}

func TestGuard_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryStore(), time.Hour, time.Second)

	_ = g.Store(ctx, "k", result{PaymentID: "first"}, 0)
	_ = g.Store(ctx, "k", result{PaymentID: "second"}, 0)

	var got result
	g.Check(ctx, "k", &got)
	if got.PaymentID != "first" {
		t.Fatalf("expected first writer to win, got %q", got.PaymentID)
	}
}

func TestGuard_FailsOpenWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	g := NewGuard(store, time.Hour, time.Second)
	_ = g.Store(ctx, "k", result{PaymentID: "p"}, 0)

	store.Err = errors.New("connection refused")
	var got result
	if g.Check(ctx, "k", &got) {
		t.Fatalf("outage must read as no record")
	}
	err := g.Store(ctx, "k", result{}, 0)
	if apperr.CodeOf(err) != apperr.CodeIdempotencyUnavailable {
		t.Fatalf("expected store unavailable code, got %v", err)
	}
}

func TestGuard_ExpiryInvalidateAndCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewMemoryStore().WithClock(clock)
	g := NewGuard(store, time.Hour, time.Second).WithClock(clock)

	_ = g.Store(ctx, "a", result{PaymentID: "a"}, time.Minute)
	_ = g.Store(ctx, "b", result{PaymentID: "b"}, 2*time.Hour)

	now = now.Add(90 * time.Second)
	var got result
	if g.Check(ctx, "a", &got) {
		t.Fatalf("expired record must not be returned")
	}
	n, err := g.Cleanup(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one record cleaned, got %d %v", n, err)
	}

	if err := g.Invalidate(ctx, "b"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if g.Check(ctx, "b", &got) {
		t.Fatalf("invalidated record must not be returned")
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestGuard_EmptyKey(t *testing.T) {
	g := NewGuard(NewMemoryStore(), 0, 0)
	if err := g.Store(context.Background(), "", result{}, 0); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected empty key error, got %v", err)
	}
}

type ttlStore struct {
	*MemoryStore
	ttls []time.Duration
}

func (s *ttlStore) PutIfAbsent(ctx context.Context, rec Record, ttl time.Duration) (bool, error) {
	s.ttls = append(s.ttls, ttl)
	return s.MemoryStore.PutIfAbsent(ctx, rec, ttl)
}

func TestGuard_StorePassesTTLFromItsOwnClock(t *testing.T) {
	past := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	st := &ttlStore{MemoryStore: NewMemoryStore().WithClock(func() time.Time { return past })}
	g := NewGuard(st, 24*time.Hour, time.Second).WithClock(func() time.Time { return past })

	if err := g.Store(context.Background(), "k", result{PaymentID: "p"}, 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := g.Store(context.Background(), "k2", result{PaymentID: "p2"}, time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(st.ttls) != 2 || st.ttls[0] != 24*time.Hour || st.ttls[1] != time.Minute {
		t.Fatalf("expected ttls [24h 1m], got %v", st.ttls)
	}
	var got result
	if !g.Check(context.Background(), "k", &got) || got.PaymentID != "p" {
		t.Fatalf("a record stored under a past clock must still be live for that clock")
	}
}

func TestRedisStore_NonPositiveTTLStoresNothing(t *testing.T) {
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	ok, err := s.PutIfAbsent(context.Background(), Record{Key: "k", ExpiresAt: time.Now().Add(time.Hour)}, 0)
	if err != nil || ok {
		t.Fatalf("expected no write for a zero ttl, got ok=%v err=%v", ok, err)
	}
}
