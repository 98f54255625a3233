// Package main is the entry point for the RoofAlert API server.
//
// It loads the configuration, builds the shared application components, mounts
// the dispatch endpoints on the core chassis (middleware, routing, health
// checks) and serves HTTP until SIGINT or SIGTERM.
//
// POST /v1/dispatches enqueues a batch to SQS when SQS_DISPATCH_QUEUE is set
// and otherwise runs it inline within REQUEST_TIMEOUT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"roofalert/internal/api/handlers"
	"roofalert/internal/app"
	"roofalert/internal/config"
	"roofalert/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(config.RegionFromEnv()))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("roofalert API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	srv, err := newServer(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	return runHTTPServer(srv, cfg, logger)
}

// newServer builds the application and mounts its handlers. The returned
// server owns the application and releases it on Shutdown.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...app.Option) (*core.Server, error) {
	a, err := app.Build(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("building application: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating server: %w", err)
	}

	if a.APIMetrics != nil {
		srv.Metrics = a.APIMetrics
	}

	// Interface values stay nil unless the component exists.
	var (
		queue   handlers.DispatchEnqueuer
		batches handlers.BatchReader
	)
	if a.Publisher != nil {
		queue = a.Publisher
	}
	if a.Ledger != nil {
		batches = a.Ledger
		srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
			ProbeName: "database",
			Fn:        a.Ping,
		})
	}

	dispatchHandler := handlers.NewDispatchHandler(a.Runner, queue, batches, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Route("/dispatches", dispatchHandler.RegisterRoutes)
	})
	srv.Closers = append(srv.Closers, func(context.Context) error {
		a.Close()
		return nil
	})

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// Inline batches can run up to the request timeout.
	writeTimeout := cfg.Server.RequestTimeout + 10*time.Second

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}

