package httpapi

import (
	"context"
	"net/http"

	"payment-platform/internal/auth"
	"payment-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Limiter caps concurrent work per id. utils.ConcurrencyCap implements it over Redis.
type Limiter interface {
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// InflightCap bounds the number of side-effecting requests a user may have
// in flight. A limiter outage lets requests through.
func InflightCap(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil || uid == "" {
			c.Next()
			return
		}
		ok, err := l.Acquire(c.Request.Context(), uid)
		if err != nil {
			logger.FromGin(c).Warn("inflight cap unavailable", "user_id", uid, "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":        false,
				"code":           "TOO_MANY_REQUESTS",
				"message":        "too many requests in flight",
				"correlation_id": logger.CorrelationID(c.Request.Context()),
			})
			return
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(c.Request.Context()), uid); err != nil {
				logger.FromGin(c).Warn("inflight cap release failed", "user_id", uid, "err", err)
			}
		}()
		c.Next()
	}
}
