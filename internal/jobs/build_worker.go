// Package jobs contains the long-running background workers: the build
// worker that drains the build queue, the stale build sweeper that runs
// beside it, and the forbidden word list watcher.
// Every job is safe to run on several replicas at once; cross-build
// invariants are enforced by the catalog, not by the jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenk/backoff"

	"github.com/nutshimit/mashin-registry/internal/config"
	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/queue"
	"github.com/nutshimit/mashin-registry/internal/safego"
)

// sweepBatchSize bounds how many stale builds one sweep re-enqueues.
const sweepBatchSize = 100

// Processor runs a build to a terminal status. An error means the status
// could not be recorded and the message should be delivered again.
type Processor interface {
	Process(ctx context.Context, build models.Build) error
}

// PendingBuilds finds builds that were queued but never picked up.
type PendingBuilds interface {
	ListPendingBuilds(ctx context.Context, olderThan time.Time, limit int) ([]models.Build, error)
	TouchBuild(ctx context.Context, id string) error
}

// BuildQueue is the queue surface the worker drains and the sweeper feeds.
type BuildQueue interface {
	queue.Producer
	queue.Consumer
}

// BuildWorker drains the build queue with a fixed number of handlers and,
// when pending is set, periodically re-enqueues builds stuck in queued.
type BuildWorker struct {
	queue         BuildQueue
	processor     Processor
	pending       PendingBuilds
	concurrency   int
	requeueAfter  time.Duration
	sweepInterval time.Duration

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewBuildWorker creates a worker. pending may be nil to disable sweeping.
func NewBuildWorker(q BuildQueue, processor Processor, pending PendingBuilds, cfg config.WorkerConfig) *BuildWorker {
	w := &BuildWorker{
		queue:         q,
		processor:     processor,
		pending:       pending,
		concurrency:   cfg.Concurrency,
		requeueAfter:  cfg.RequeueAfter,
		sweepInterval: cfg.SweepInterval,
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if w.requeueAfter <= 0 {
		w.requeueAfter = 15 * time.Minute
	}
	if w.sweepInterval <= 0 {
		w.sweepInterval = 5 * time.Minute
	}
	return w
}

// Start launches the handlers and the sweeper and returns immediately.
// Cancelling ctx or calling Stop stops receiving; builds already being
// processed run to completion.
func (w *BuildWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	slog.Info("build worker started", "concurrency", w.concurrency,
		"requeue_after", w.requeueAfter, "sweep_interval", w.sweepInterval)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		safego.Go(fmt.Sprintf("build handler %d", i), func() {
			defer w.wg.Done()
			w.consume(ctx)
		})
	}

	if w.pending != nil {
		w.wg.Add(1)
		safego.Go("stale build sweeper", func() {
			defer w.wg.Done()
			w.sweepLoop(ctx)
		})
	}
}

// Stop stops receiving and waits for in-flight builds to finish.
func (w *BuildWorker) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
	w.wg.Wait()
	slog.Info("build worker stopped")
}

// consume receives until ctx is cancelled or the queue is closed. Receive
// failures (Redis down) back off exponentially up to 30s.
func (w *BuildWorker) consume(ctx context.Context) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 500 * time.Millisecond
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	for ctx.Err() == nil {
		d, err := w.queue.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrNoMessage):
			continue
		case errors.Is(err, queue.ErrClosed):
			return
		case ctx.Err() != nil:
			return
		default:
			wait := retry.NextBackOff()
			slog.Warn("failed to receive build, backing off", "wait", wait, "error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		retry.Reset()
		// A build that started keeps running through shutdown.
		w.handle(context.WithoutCancel(ctx), d)
	}
}

// handle processes one delivery and settles it. A panic in the processor
// acks the message: redelivering would panic again, and the build stays
// queued for the sweeper to retry later.
func (w *BuildWorker) handle(ctx context.Context, d *queue.Delivery) {
	build := d.Build
	var err error
	ok := safego.Run("build "+build.ID, func() {
		err = w.processor.Process(ctx, build)
	})

	switch {
	case !ok:
		slog.Error("build processor panicked, leaving build for the sweeper", "build_id", build.ID, "module", build.Module)
		w.ack(ctx, d)
	case err != nil:
		slog.Error("failed to record build outcome, redelivering", "build_id", build.ID, "module", build.Module, "error", err)
		if nackErr := w.queue.Nack(ctx, d); nackErr != nil {
			slog.Error("failed to return build to the queue", "build_id", build.ID, "error", nackErr)
		}
	default:
		w.ack(ctx, d)
	}
}

func (w *BuildWorker) ack(ctx context.Context, d *queue.Delivery) {
	if err := w.queue.Ack(ctx, d); err != nil {
		slog.Error("failed to ack build", "build_id", d.Build.ID, "error", err)
	}
}

func (w *BuildWorker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				slog.Error("stale build sweep failed", "requeued", n, "error", err)
			} else if n > 0 {
				slog.Info("requeued stale builds", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep re-enqueues builds that have been queued for longer than
// requeueAfter. Each build is touched first so a slow queue does not get the
// same build twice from consecutive sweeps. It returns the number requeued.
func (w *BuildWorker) Sweep(ctx context.Context) (int, error) {
	if w.pending == nil {
		return 0, nil
	}

	stale, err := w.pending.ListPendingBuilds(ctx, time.Now().Add(-w.requeueAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for i := range stale {
		build := stale[i]
		if err := w.pending.TouchBuild(ctx, build.ID); err != nil {
			return requeued, err
		}
		if err := w.queue.Enqueue(ctx, &build); err != nil {
			return requeued, fmt.Errorf("failed to requeue build %s: %w", build.ID, err)
		}
		requeued++
	}
	return requeued, nil
}
