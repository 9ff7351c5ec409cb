// Package api wires together all HTTP routes for the mashin registry.
//
// Route groups:
//   - Read routes (/api/v1/libs, /api/v1/provider/..., raw files) are public
//     and share the general per-client rate limit.
//   - The GitHub webhook is public; deliveries are authenticated by HMAC
//     signature when a secret is configured and limited per module.
//   - Operator routes (builds, backfill, token minting) require a JWT or the
//     admin key.
package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/nutshimit/mashin-registry/internal/api/admin"
	"github.com/nutshimit/mashin-registry/internal/api/modules"
	"github.com/nutshimit/mashin-registry/internal/api/webhooks"
	"github.com/nutshimit/mashin-registry/internal/config"
	"github.com/nutshimit/mashin-registry/internal/middleware"
	"github.com/nutshimit/mashin-registry/internal/storage"
)

// Dependencies are the components the HTTP layer serves. Redis is optional;
// without it webhook limits are enforced per replica.
type Dependencies struct {
	DB       *sql.DB
	Storage  storage.Storage
	Catalog  CatalogStore
	Builds   admin.BuildReader
	Intake   webhooks.EventHandler
	Backfill admin.Backfiller
	Redis    redis.UniversalClient
	Version  string
}

// CatalogStore is the module repository surface the routes read from.
type CatalogStore interface {
	modules.Catalog
	admin.ModuleReader
}

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB, deps.Storage))
	router.GET("/version", versionHandler(deps.Version))

	// Public reads share one limiter so raw file scraping and API polling
	// draw from the same per-client budget.
	var readLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.Security.RateLimiting.Enabled {
		generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(cfg.Security.RateLimiting))
		bg.rateLimiters = append(bg.rateLimiters, generalRateLimiter)
		readLimit = middleware.RateLimitMiddleware(generalRateLimiter)
	}

	moduleHandlers := modules.NewHandler(deps.Catalog, deps.Storage, cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	webhookHandler := webhooks.NewGitHubWebhookHandler(deps.Intake, cfg.GitHub.WebhookSecret)
	buildHandlers := admin.NewBuildHandlers(deps.Builds)
	backfillHandlers := admin.NewBackfillHandlers(deps.Catalog, deps.Backfill)
	tokenHandlers := admin.NewTokenHandlers(cfg.Auth.TokenTTL)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	{
		reads := apiV1.Group("")
		reads.Use(readLimit)
		{
			reads.GET("/libs", moduleHandlers.ListLibs)
			reads.GET("/lib/:module", moduleHandlers.GetLib)
			reads.GET("/lib/:module/:version", moduleHandlers.GetLibVersion)
			reads.GET("/providers", moduleHandlers.ListProviders)
			reads.GET("/provider/:module", moduleHandlers.GetProvider)
			reads.GET("/provider/:module/:version", moduleHandlers.GetProviderVersion)
			reads.GET("/provider/:module/:version/doc", moduleHandlers.GetProviderDoc)
		}

		// GitHub delivers from a shared pool of addresses, so webhooks are
		// limited per module rather than per client.
		webhookGroup := apiV1.Group("/webhook")
		if cfg.Security.RateLimiting.Enabled {
			if deps.Redis != nil {
				webhookGroup.Use(middleware.WebhookRateLimitMiddleware(
					middleware.NewWebhookLimiter(deps.Redis, cfg.Security.RateLimiting.WebhookPerMinute)))
			} else {
				webhookRateLimiter := middleware.NewRateLimiter(middleware.WebhookRateLimitConfig(cfg.Security.RateLimiting))
				bg.rateLimiters = append(bg.rateLimiters, webhookRateLimiter)
				webhookGroup.Use(middleware.RateLimitMiddleware(webhookRateLimiter))
			}
		}
		webhookGroup.POST("/github/:module", webhookHandler.HandleWebhook)

		authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		bg.rateLimiters = append(bg.rateLimiters, authRateLimiter)
		apiV1.POST("/auth/token",
			middleware.RateLimitMiddleware(authRateLimiter),
			middleware.AdminKeyMiddleware(cfg.Auth),
			tokenHandlers.IssueToken,
		)

		operator := apiV1.Group("")
		operator.Use(middleware.AuthMiddleware(cfg.Auth))
		{
			operator.GET("/builds/:id", buildHandlers.GetBuild)
			operator.POST("/modules/:module/backfill", backfillHandlers.TriggerBackfill)
		}
	}

	// Raw module files: /{name}@{version}/{path}
	router.GET("/:spec/*path",
		middleware.SecurityHeadersMiddleware(middleware.FileSecurityHeadersConfig()),
		readLimit,
		moduleHandlers.ServeFile,
	)

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessProbeKey never exists; a not-found answer proves the backend is
// reachable and authenticated.
const readinessProbeKey = ".readiness-probe"

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when builds could not store files.
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if _, err := store.Stat(c.Request.Context(), readinessProbeKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the build version and API version
func versionHandler(version string) gin.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}
