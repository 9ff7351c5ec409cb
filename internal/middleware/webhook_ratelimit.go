package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// WebhookLimiter caps webhook deliveries per module across every replica
// sharing the Redis instance (GCRA via redis_rate).
type WebhookLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewWebhookLimiter allows perMinute deliveries per module per minute.
func NewWebhookLimiter(client redis.UniversalClient, perMinute int) *WebhookLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &WebhookLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerMinute(perMinute),
	}
}

// WebhookRateLimitMiddleware rejects deliveries over the per-module limit with
// 429. When Redis is unreachable the delivery is let through: dropping a
// GitHub release event is worse than processing one extra.
func WebhookRateLimitMiddleware(l *WebhookLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := webhookKey(c)

		res, err := l.limiter.Allow(c.Request.Context(), key, l.limit)
		if err != nil {
			slog.Warn("webhook rate limiter unavailable, allowing delivery", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit.Rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"error":       "rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}
