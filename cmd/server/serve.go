package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the internal profiling port, never on the API listener.
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nutshimit/mashin-registry/internal/api"
	"github.com/nutshimit/mashin-registry/internal/auth"
	"github.com/nutshimit/mashin-registry/internal/config"
	"github.com/nutshimit/mashin-registry/internal/jobs"
	"github.com/nutshimit/mashin-registry/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and webhook intake",
	Long: "Run the HTTP API and webhook intake. With worker.embedded (or --worker) " +
		"the build worker runs in the same process.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if embedded, _ := cmd.Flags().GetBool("worker"); embedded {
			cfg.Worker.Embedded = true
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().Bool("worker", false, "also run the build worker in this process")
}

func serve(cfg *config.Config) error {
	if err := auth.ValidateJWTSecret(cfg.Auth.JWTSecret); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	if cfg.Auth.AdminKeyHash == "" {
		slog.Warn("auth.admin_key_hash not set, operator endpoints only accept JWTs")
	}
	if cfg.GitHub.WebhookSecret == "" {
		slog.Warn("github.webhook_secret not set, webhook signatures are not verified")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	telemetry.StartDBStatsCollector(ctx, a.db)
	startSideServers(cfg.Telemetry)

	watcher, err := a.startWordListWatcher(ctx)
	if err != nil {
		return fmt.Errorf("failed to load forbidden word list: %w", err)
	}

	backfill := a.backfill()
	router, bg := api.NewRouter(cfg, api.Dependencies{
		DB:       a.db,
		Storage:  a.store,
		Catalog:  a.modules,
		Builds:   a.builds,
		Intake:   a.intake(backfill),
		Backfill: backfill,
		Redis:    a.redisClient(),
		Version:  version,
	})

	var worker *jobs.BuildWorker
	if cfg.Worker.Embedded {
		worker = a.startWorker(ctx)
	}

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "base_url", cfg.Server.BaseURL,
			"storage", cfg.Storage.DefaultBackend, "queue", cfg.Queue.Backend, "embedded_worker", cfg.Worker.Embedded)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shut down", "error", err)
	}

	// Stop receiving before the queue and database close; builds in flight
	// finish first.
	if worker != nil {
		worker.Stop()
	}
	if watcher != nil {
		watcher.Stop()
	}
	bg.Shutdown()

	slog.Info("server stopped")
	return nil
}

// startSideServers serves Prometheus metrics and, when enabled, pprof on
// their own ports so neither is reachable through the public ingress.
func startSideServers(cfg config.TelemetryConfig) {
	if cfg.Metrics.Enabled {
		addr := fmt.Sprintf(":%d", cfg.Metrics.PrometheusPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go listenSide("metrics", &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		})
	}

	if cfg.Profiling.Enabled {
		go listenSide("pprof", &http.Server{ //nolint:gosec // internal-only port, long timeouts for profiles
			Addr:              fmt.Sprintf(":%d", cfg.Profiling.Port),
			Handler:           http.DefaultServeMux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
		})
	}
}

func listenSide(name string, srv *http.Server) {
	slog.Info("starting "+name+" server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error(name+" server error", "error", err)
	}
}

// waitForSignal blocks until ctx is cancelled and logs the shutdown.
func waitForSignal(ctx context.Context, what string) {
	<-ctx.Done()
	slog.Info("shutting down " + what)
}
