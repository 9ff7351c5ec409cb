package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nutshimit/mashin-registry/internal/telemetry"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the build worker without the HTTP API",
	Long: "Run the build worker without the HTTP API. Requires the redis queue; " +
		"the memory queue is only reachable from inside a serve process.",
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Queue.Backend == "memory" {
			return fmt.Errorf("the worker command needs queue.backend redis; use serve --worker with the memory queue")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		telemetry.StartDBStatsCollector(ctx, a.db)
		startSideServers(cfg.Telemetry)

		w := a.startWorker(ctx)
		waitForSignal(ctx, "build worker")
		w.Stop()
		return nil
	},
}
