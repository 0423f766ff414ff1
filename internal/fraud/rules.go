package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"payment-platform/pkg/logger"
)

// Counter is a windowed counter store.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// RulesConfig holds the thresholds used by RulesGate. Amounts are minor units.
type RulesConfig struct {
	ReviewAmount       int64
	HighAmount         int64
	VelocityWindow     time.Duration
	VelocityLimit      int64
	FailedConfirmLimit int64
	FailedConfirmTTL   time.Duration
}

func (c RulesConfig) withDefaults() RulesConfig {
	out := c
	if out.ReviewAmount <= 0 {
		out.ReviewAmount = 200000
	}
	if out.HighAmount <= 0 {
		out.HighAmount = 1000000
	}
	if out.VelocityWindow <= 0 {
		out.VelocityWindow = time.Hour
	}
	if out.VelocityLimit <= 0 {
		out.VelocityLimit = 20
	}
	if out.FailedConfirmLimit <= 0 {
		out.FailedConfirmLimit = 3
	}
	if out.FailedConfirmTTL <= 0 {
		out.FailedConfirmTTL = 24 * time.Hour
	}
	return out
}

type factor struct {
	name  string
	score float64
}

// RulesGate is an in-house scorer: amount tiers, payer velocity, and
// recent failed confirmations. Scores add up and are clamped to [0,1].
//
// Score 0-0.29: approve
// Score 0.3-0.49: manual review
// Score 0.5-0.79: hold
// Score 0.8+: reject
type RulesGate struct {
	counter Counter
	cfg     RulesConfig
}

func NewRulesGate(counter Counter, cfg RulesConfig) *RulesGate {
	return &RulesGate{counter: counter, cfg: cfg.withDefaults()}
}

func velocityKey(payerID string) string { return "fraud:velocity:" + payerID }
func failedKey(payerID string) string   { return "fraud:failed_confirm:" + payerID }

func (g *RulesGate) Evaluate(ctx context.Context, req Request) (Decision, error) {
	velocity, err := g.counter.Incr(ctx, velocityKey(req.PayerID), g.cfg.VelocityWindow)
	if err != nil {
		return Decision{}, fmt.Errorf("fraud: velocity counter: %w", err)
	}
	failed, err := g.counter.Get(ctx, failedKey(req.PayerID))
	if err != nil {
		return Decision{}, fmt.Errorf("fraud: failed confirmation counter: %w", err)
	}

	d := g.score(req.Payment.Amount.Amount, velocity, failed)

	logger.From(ctx).Info("fraud assessment completed",
		"payer_id", req.PayerID,
		"payment_id", req.Payment.ID,
		"score", d.Score,
		"action", d.Action,
	)
	return d, nil
}

func (g *RulesGate) score(amount, velocity, failed int64) Decision {
	var factors []factor

	switch {
	case amount >= g.cfg.HighAmount:
		factors = append(factors, factor{"large_amount", 0.5})
	case amount >= g.cfg.ReviewAmount:
		factors = append(factors, factor{"medium_amount", 0.3})
	}
	if velocity > g.cfg.VelocityLimit {
		factors = append(factors, factor{"high_velocity", 0.3})
	}
	if failed >= g.cfg.FailedConfirmLimit {
		factors = append(factors, factor{"failed_confirmations", 0.5})
	}

	var (
		total float64
		names []string
	)
	for _, f := range factors {
		total += f.score
		names = append(names, f.name)
	}
	if total > 1 {
		total = 1
	}

	d := Decision{Score: total, Confidence: 0.6 + 0.1*float64(len(factors))}
	if d.Confidence > 0.9 {
		d.Confidence = 0.9
	}
	switch {
	case total >= 0.8:
		d.Action, d.RiskLevel = ActionReject, RiskCritical
	case total >= 0.5:
		d.Action, d.RiskLevel = ActionHold, RiskHigh
	case total >= 0.3:
		d.Action, d.RiskLevel = ActionManualReview, RiskMedium
	default:
		d.Action, d.RiskLevel = ActionApprove, RiskLow
	}
	if len(names) == 0 {
		d.Reason = "no risk factors"
	} else {
		d.Reason = strings.Join(names, ",")
	}
	return d
}

func (g *RulesGate) ReportFailedConfirmation(ctx context.Context, payerID, paymentID string) error {
	n, err := g.counter.Incr(ctx, failedKey(payerID), g.cfg.FailedConfirmTTL)
	if err != nil {
		return err
	}
	logger.From(ctx).Warn("failed confirmation reported", "payer_id", payerID, "payment_id", paymentID, "count", n)
	return nil
}

// RedisCounter implements Counter with INCR and a TTL set on first increment.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
