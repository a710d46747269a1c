// Package main implements the worker-host process: it runs the worker
// pool against the shared ledger, queue and blob store without serving HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/jobpipe/internal/app"
	"github.com/phrazzld/jobpipe/internal/config"
	"github.com/phrazzld/jobpipe/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(logger.Options{Level: cfg.Server.LogLevel, Component: "worker"})
	if cfg.Ledger.Backend == config.BackendMemory || cfg.Queue.Backend == config.BackendMemory {
		log.Warn("worker host is using in-process storage; jobs submitted to other processes are not visible",
			"ledger_backend", cfg.Ledger.Backend,
			"queue_backend", cfg.Queue.Backend)
	}

	a, err := app.New(ctx, cfg, log, app.Options{WithWorkers: true})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	runner, err := a.Runner()
	if err != nil {
		return fmt.Errorf("failed to create worker runner: %w", err)
	}
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down workers")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil {
		return err
	}
	log.Info("workers stopped")
	return nil
}
