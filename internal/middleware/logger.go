package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware writes one slog record per request. The output format
// follows the handler installed by telemetry.SetupLogger; health probes are
// logged at debug level so they do not drown real traffic.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		switch {
		case c.Writer.Status() >= 500:
			level = slog.LevelError
		case path == "/health" || path == "/ready":
			level = slog.LevelDebug
		}

		requestID, _ := c.Get(RequestIDKey)
		id, _ := requestID.(string)

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", id),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.String("github_delivery", c.GetHeader("X-GitHub-Delivery")),
		)
	}
}
