package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofalert/internal/app"
	"roofalert/internal/config"
	"roofalert/internal/core"
)

const areaResult = `{
  "zipcode": "75201",
  "roofs": [{"roof_id": 1, "confidence": 0.95, "area_pixels": 4000, "center": [100, 200]}],
  "damages": [{"damage_type": "hail_damage", "severity": "high", "confidence": 0.9, "area_pixels": 1000, "roof_id": 1}]
}`

type fakeSQS struct {
	bodies []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.bodies = append(f.bodies, *in.MessageBody)
	id := "msg-1"
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// setTestEnv sets the minimal environment for a local API with a stub email
// provider and a temporary artifact directory.
func setTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("ANALYSIS_SOURCE", "artifacts")
	t.Setenv("ARTIFACT_STORE", "file")
	t.Setenv("ARTIFACT_DIR", dir)
	t.Setenv("EMAIL_PROVIDER", "stub")
	t.Setenv("DISPATCH_FALLBACK_RECIPIENT", "fallback@example.com")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQS_DISPATCH_QUEUE", "")
	t.Setenv("ENABLE_METRICS", "false")
	return dir
}

func buildTestServer(t *testing.T, mutate func(*config.Config), opts ...app.Option) *core.Server {
	t.Helper()
	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := newServer(context.Background(), cfg, logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	setTestEnv(t)
	srv := buildTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestCreateDispatch_Inline(t *testing.T) {
	dir := setTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "75201_20260302.json"), []byte(areaResult), 0o644))
	srv := buildTestServer(t, nil)

	body := strings.NewReader(`{"area_id":"75201","recipients":["owner@example.com"]}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/dispatches", body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data struct {
			AreaID string `json:"area_id"`
			Sent   int    `json:"sent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "75201", resp.Data.AreaID)
	assert.Equal(t, 1, resp.Data.Sent)
	assert.NotEmpty(t, rec.Header().Get(core.RequestIDHeader))
}

func TestCreateDispatch_AnalysisMissing(t *testing.T) {
	setTestEnv(t)
	srv := buildTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/dispatches", strings.NewReader(`{"area_id":"99999"}`)))

	assert.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
}

func TestCreateDispatch_Enqueued(t *testing.T) {
	setTestEnv(t)
	queue := &fakeSQS{}
	srv := buildTestServer(t, func(cfg *config.Config) {
		cfg.AWS.DispatchQueueURL = "http://localhost:4566/000000000000/dispatch-queue"
	}, app.WithSQS(queue))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/dispatches", strings.NewReader(`{"area_id":"75201"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, queue.bodies, 1)
	assert.Contains(t, queue.bodies[0], `"area_id":"75201"`)
}

func TestGetDispatch_NoLedger(t *testing.T) {
	setTestEnv(t)
	srv := buildTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dispatches/batch_x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownTimeout(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, 10*time.Second, shutdownTimeout(cfg))
	cfg.Server.ShutdownTimeout = 3 * time.Second
	assert.Equal(t, 3*time.Second, shutdownTimeout(cfg))
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			assert.NotNil(t, newLogger(level))
		})
	}
}
