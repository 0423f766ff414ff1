package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a test double. It is not wired on any production path.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	clock   func() time.Time

	// Err, when set, is returned by every call to simulate an outage.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}, clock: time.Now}
}

func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Record{}, false, s.Err
	}
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, rec Record, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if cur, ok := s.records[rec.Key]; ok && !cur.Expired(s.clock()) {
		return false, nil
	}
	s.records[rec.Key] = rec
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for k, r := range s.records {
		if r.Expired(now) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
