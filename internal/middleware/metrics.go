// Package middleware provides the Gin middleware shared by every registry
// route: request ids, access logging, Prometheus metrics, security and CORS
// headers, rate limiting and operator authentication. Ordering is set in
// internal/api/router.go.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/telemetry"
)

// MetricsMiddleware records http_requests_total{method, path, status} and
// http_request_duration_seconds{method, path} for every request.
//
// The path label is the matched route template (e.g. /api/v1/provider/:module),
// never the raw URL, so raw file requests under /:spec/*path do not explode label
// cardinality. Unmatched requests use "<no-route>".
//
// Register it after gin.Recovery() and RequestIDMiddleware so the final status is
// captured.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
