package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/nutshimit/mashin-registry/internal/archive"
	"github.com/nutshimit/mashin-registry/internal/config"
	"github.com/nutshimit/mashin-registry/internal/db"
	"github.com/nutshimit/mashin-registry/internal/db/repositories"
	"github.com/nutshimit/mashin-registry/internal/fetch"
	"github.com/nutshimit/mashin-registry/internal/github"
	"github.com/nutshimit/mashin-registry/internal/jobs"
	"github.com/nutshimit/mashin-registry/internal/queue"
	"github.com/nutshimit/mashin-registry/internal/services"
	"github.com/nutshimit/mashin-registry/internal/storage"
	"github.com/nutshimit/mashin-registry/internal/telemetry"

	// Storage backends register themselves with storage.NewStorage.
	_ "github.com/nutshimit/mashin-registry/internal/storage/azure"
	_ "github.com/nutshimit/mashin-registry/internal/storage/gcs"
	_ "github.com/nutshimit/mashin-registry/internal/storage/local"
	_ "github.com/nutshimit/mashin-registry/internal/storage/s3"
)

const queueDepthInterval = 15 * time.Second

func setupLogging(cfg *config.Config) {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

// app holds the components shared by serve and worker.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	store   storage.Storage
	redis   *redis.Client
	queue   queue.Queue
	tracing *telemetry.TracerProvider

	modules *repositories.ModuleRepository
	builds  *repositories.BuildRepository
	words   *repositories.ForbiddenWordRepository

	// downloads fetches archives and release assets; api carries the
	// GitHub token and is only used against the API host.
	downloads fetch.Getter
	api       fetch.Getter
}

// newApp connects every backing service. migrate runs pending migrations
// before anything reads the schema.
func newApp(ctx context.Context, cfg *config.Config, migrate bool) (*app, error) {
	a := &app{cfg: cfg}

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.tracing = tp

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = database
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if migrate {
		if err := db.RunMigrations(database, "up"); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if v, dirty, err := db.GetMigrationVersion(database); err != nil {
			slog.Warn("failed to read migration version", "error", err)
		} else {
			slog.Info("database schema ready", "version", v, "dirty", dirty)
		}
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialise storage: %w", err)
	}
	a.store = store

	if cfg.Redis.Addr != "" {
		a.redis = queue.NewRedisClient(cfg.Redis)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			slog.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	q, err := queue.New(cfg.Queue, a.redisClient())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialise build queue: %w", err)
	}
	a.queue = q

	sqlxDB := db.Wrap(database)
	a.modules = repositories.NewModuleRepository(database)
	a.builds = repositories.NewBuildRepository(sqlxDB)
	a.words = repositories.NewForbiddenWordRepository(sqlxDB)

	a.downloads = fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithTimeout(cfg.GitHub.RequestTimeout)))
	a.api = fetch.NewCircuitBreakerFetcher(github.NewAPIFetcher(cfg.GitHub))

	return a, nil
}

// redisClient returns the shared client, or a nil interface when Redis is not
// configured.
func (a *app) redisClient() redis.UniversalClient {
	if a.redis == nil {
		return nil
	}
	return a.redis
}

// backfill returns the release backfill service.
func (a *app) backfill() *services.Backfill {
	releases := github.NewClient(a.api, a.cfg.GitHub.APIURL)
	return services.NewBackfill(releases, a.modules, a.builds, a.queue, 0)
}

// intake returns the webhook intake service, with first-registration
// backfill when it is enabled.
func (a *app) intake(backfill *services.Backfill) *services.Intake {
	var hook services.RegistrationHook
	if a.cfg.Registry.BackfillEnabled {
		hook = backfill
	}
	return services.NewIntake(a.modules, a.builds, a.words, a.queue, hook)
}

// newWorker builds the queue consumer and its stale build sweeper.
func (a *app) newWorker() *jobs.BuildWorker {
	extractor := archive.NewExtractor(a.downloads, a.store, a.cfg.GitHub.ArchiveBaseURL)
	processor := services.NewBuildProcessor(a.modules, a.builds, extractor, a.downloads, a.store)
	return jobs.NewBuildWorker(a.queue, processor, a.builds, a.cfg.Worker)
}

// startWorker returns in-flight Redis messages to the pending list, starts the
// worker and the queue depth gauge.
func (a *app) startWorker(ctx context.Context) *jobs.BuildWorker {
	if rq, ok := a.queue.(*queue.RedisQueue); ok {
		if n, err := rq.RecoverInFlight(ctx); err != nil {
			slog.Warn("failed to recover in-flight builds", "error", err)
		} else if n > 0 {
			slog.Info("recovered in-flight builds", "count", n)
		}
	}

	telemetry.StartQueueDepthCollector(ctx, queueDepthInterval, a.queue.Len)

	w := a.newWorker()
	w.Start(ctx)
	return w
}

// startWordListWatcher loads the forbidden word file and, when configured,
// keeps watching it. It returns nil when no file is configured.
func (a *app) startWordListWatcher(ctx context.Context) (*jobs.WordListWatcher, error) {
	path := a.cfg.Registry.ForbiddenWordsFile
	if path == "" {
		return nil, nil
	}
	if !a.cfg.Registry.WatchForbiddenList {
		n, err := jobs.SyncWordList(ctx, a.words, path)
		if err != nil {
			return nil, err
		}
		slog.Info("forbidden word list loaded", "path", path, "words", n)
		return nil, nil
	}
	w := jobs.NewWordListWatcher(path, a.words)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Close releases every connection newApp opened.
func (a *app) Close() {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}
}
