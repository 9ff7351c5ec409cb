// Package telemetry provides logging, metrics and tracing for the registry.
//
// # Prometheus Metrics Endpoint
//
// Metrics are registered against the default Prometheus registry and served by
// the side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<MASHIN_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// It is not served by the Gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (the route template such as
// /api/v1/provider/:module) rather than the raw URL. Build metrics are
// labelled by module kind, never by module name.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate:  rate(http_requests_total[5m])
//   - p99 latency:   histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// WebhookEventsTotal counts webhook deliveries by GitHub event and outcome.
// outcome is one of accepted, ignored, rejected, error.
//
// Example PromQL queries:
//   - Rejections by event:  sum by (event) (rate(webhook_events_total{outcome="rejected"}[1h]))
var WebhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of GitHub webhook deliveries, by event and outcome.",
	},
	[]string{"event", "outcome"},
)

// Build metrics, recorded by the build processor.
//
// BuildsTotal is labelled {kind, status} where kind is std or provider and
// status is success or error.
//
// Example PromQL queries:
//   - Failure ratio:  sum(rate(builds_total{status="error"}[1h])) / sum(rate(builds_total[1h]))
var (
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "builds_total",
			Help: "Total number of builds that reached a terminal status, by module kind and status.",
		},
		[]string{"kind", "status"},
	)

	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "build_duration_seconds",
			Help:    "Duration of a single build, from dequeue to terminal status.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	// ArchiveFilesStoredTotal counts objects written by the archive extractor.
	ArchiveFilesStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_files_stored_total",
			Help: "Total number of release archive entries written to object storage.",
		},
	)
)

// UpstreamRequestsTotal counts outbound fetches by host and result
// (ok, not_found, rate_limited, error, circuit_open).
var UpstreamRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Total number of outbound HTTP fetches, by host and result.",
	},
	[]string{"host", "result"},
)

// QueueDepth is the number of builds waiting in the queue, sampled periodically.
var QueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "build_queue_depth",
		Help: "Current number of build messages waiting to be processed.",
	},
)

// DBOpenConnections tracks open connections in the sql.DB pool, sampled every 30 seconds.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every 30 seconds until
// ctx is cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}

// DepthFunc reports the current queue length.
type DepthFunc func(ctx context.Context) (int64, error)

// StartQueueDepthCollector samples depth every interval until ctx is cancelled.
func StartQueueDepthCollector(ctx context.Context, interval time.Duration, depth DepthFunc) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := depth(ctx)
				if err != nil {
					slog.Debug("queue depth collector: sample failed", "error", err)
					continue
				}
				QueueDepth.Set(float64(n))
			}
		}
	}()
}
