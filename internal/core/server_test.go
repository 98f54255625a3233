package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"roofalert/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Environment: "local"}, discardLogger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	return srv
}

type mockMetricsCollector struct {
	calls []metricsCall
}

type metricsCall struct {
	method, endpoint, status string
	duration                 time.Duration
}

func (m *mockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.calls = append(m.calls, metricsCall{method, endpoint, status, duration})
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(nil, discardLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestServer_V1RouteRegistrars(t *testing.T) {
	srv := newTestServer(t)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, APIResponse{Data: "pong"})
		})
	})
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != `{"data":"pong"}` {
		t.Errorf("body = %s", got)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestServer_MetricsUseRoutePattern(t *testing.T) {
	srv := newTestServer(t)
	metrics := &mockMetricsCollector{}
	srv.Metrics = metrics
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/dispatches/{batchID}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	})
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dispatches/batch_1", nil))

	if len(metrics.calls) != 1 {
		t.Fatalf("recorded %d calls, want 1", len(metrics.calls))
	}
	call := metrics.calls[0]
	if call.method != http.MethodGet || call.endpoint != "/v1/dispatches/{batchID}" || call.status != "404" {
		t.Errorf("unexpected call: %+v", call)
	}
}

func TestServer_Shutdown(t *testing.T) {
	srv := newTestServer(t)
	var order []string
	srv.Closers = append(srv.Closers,
		func(context.Context) error { order = append(order, "db"); return nil },
		func(context.Context) error { order = append(order, "queue"); return errors.New("boom") },
	)

	err := srv.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(order) != 2 || order[0] != "db" || order[1] != "queue" {
		t.Errorf("closers ran as %v", order)
	}
}

func TestServer_ShutdownWithoutClosers(t *testing.T) {
	if err := newTestServer(t).Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}
