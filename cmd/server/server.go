package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/jobpipe/internal/api"
	"github.com/phrazzld/jobpipe/internal/app"
	"github.com/phrazzld/jobpipe/internal/config"
	"github.com/phrazzld/jobpipe/internal/platform/logger"
)

// run loads configuration, builds the dependency graph and serves until ctx
// is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(logger.Options{Level: cfg.Server.LogLevel, Component: "server"})
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"ledger_backend", cfg.Ledger.Backend,
		"queue_backend", cfg.Queue.Backend,
		"blob_backend", cfg.Blob.Backend,
		"embedded_workers", cfg.Server.EmbeddedWorkers,
		"auth_enabled", cfg.Auth.JWTSecret != "")

	a, err := app.New(ctx, cfg, log, app.Options{WithWorkers: cfg.Server.EmbeddedWorkers})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", cfg.Server.Port, err)
	}
	return serve(ctx, a, ln)
}

// serve runs the HTTP server on ln and, when the app was built with workers,
// the worker pool. Both stop when ctx is cancelled: the server drains open
// requests, then the workers finish in-flight jobs, each within the
// configured shutdown timeout.
func serve(ctx context.Context, a *app.App, ln net.Listener) error {
	log := a.Logger
	cfg := a.Config

	jobs, err := a.JobService()
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to create job service: %w", err)
	}
	router, err := api.NewRouter(jobs, api.RouterConfig{
		JWTSecret:       cfg.Auth.JWTSecret,
		MaxPayloadBytes: cfg.Server.MaxPayloadBytes,
		Pingers:         a.Pingers,
	}, log)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to create router: %w", err)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if a.Engine != nil {
		abort := func(err error) error {
			_ = srv.Close()
			_ = g.Wait()
			return err
		}
		runner, err := a.Runner()
		if err != nil {
			return abort(fmt.Errorf("failed to create worker runner: %w", err))
		}
		if err := runner.Start(gctx); err != nil {
			return abort(fmt.Errorf("failed to start workers: %w", err))
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return runner.Stop(stopCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server shutdown completed")
	return nil
}
