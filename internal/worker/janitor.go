// Package worker runs periodic maintenance next to the API.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Expirer moves overdue payments to Expired.
type Expirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// Cleaner drops expired idempotency records.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Janitor sweeps overdue payments and expired idempotency records on a ticker.
type Janitor struct {
	expirer  Expirer
	cleaner  Cleaner
	interval time.Duration
	batch    int
	log      *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewJanitor(expirer Expirer, cleaner Cleaner, interval time.Duration, log *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		expirer:  expirer,
		cleaner:  cleaner,
		interval: interval,
		batch:    100,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	j.log.Info("janitor started", "interval", j.interval.String())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stop:
			j.log.Info("janitor stopped")
			return
		case <-ctx.Done():
			j.log.Info("janitor stopped", "reason", ctx.Err().Error())
			return
		}
	}
}

func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

// RunOnce performs a single sweep. A full batch of expirations is followed
// by another batch in the same run so a backlog drains without waiting.
func (j *Janitor) RunOnce(ctx context.Context) {
	if j.expirer != nil {
		total := 0
		for {
			n, err := j.expirer.ExpireStale(ctx, j.batch)
			total += n
			if err != nil {
				j.log.Error("expire sweep failed", "err", err)
				break
			}
			if n < j.batch || ctx.Err() != nil {
				break
			}
		}
		if total > 0 {
			j.log.Info("expired stale payments", "count", total)
		}
	}

	if j.cleaner != nil {
		n, err := j.cleaner.Cleanup(ctx)
		if err != nil {
			j.log.Warn("idempotency cleanup failed", "err", err)
		} else if n > 0 {
			j.log.Info("idempotency records removed", "count", n)
		}
	}
}
