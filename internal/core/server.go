// Package core is the HTTP chassis for the RoofAlert API. It owns the chi
// router, the middleware chain, the JSON envelope and error mapping, and the
// health endpoint. Domain handlers attach through V1RouteRegistrars.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"roofalert/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the dependencies of the API and owns its chi router.
//
// Exported fields are set by the composition root between NewServer and
// MountRoutes. Metrics and HealthProbes are optional; a nil Metrics disables
// request telemetry and an empty HealthProbes makes /health always healthy.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1.
	V1RouteRegistrars []func(chi.Router)

	// Closers run on Shutdown in registration order.
	Closers []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer creates a Server with an empty router. cfg and logger are
// required.
//
// Routes are mounted separately by MountRoutes so callers can register
// handlers, probes and closers first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs every registered closer in order and joins their errors.
// It does not stop the HTTP listener; the caller shuts down its http.Server
// first and then releases resources here. All closers run even when an
// earlier one fails.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, closeFn := range s.Closers {
		if err := closeFn(ctx); err != nil {
			s.Logger.Error("error releasing server resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("releasing server resources: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
