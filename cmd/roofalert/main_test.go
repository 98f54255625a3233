package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofalert/internal/config"
)

const areaResult = `{
  "zipcode": "75201",
  "roofs": [
    {"roof_id": 1, "confidence": 0.95, "area_pixels": 4000, "center": [100, 200]},
    {"roof_id": 2, "confidence": 0.88, "area_pixels": 3000, "center": [400, 250]}
  ],
  "damages": [
    {"damage_type": "hail_damage", "severity": "high", "confidence": 0.9, "area_pixels": 1000, "roof_id": 1},
    {"damage_type": "ponding", "severity": "medium", "confidence": 0.8, "area_pixels": 100, "roof_id": 2}
  ]
}`

// setTestEnv configures a local run against a temporary artifact directory.
func setTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ANALYSIS_SOURCE", "artifacts")
	t.Setenv("ARTIFACT_STORE", "file")
	t.Setenv("ARTIFACT_DIR", dir)
	t.Setenv("EMAIL_PROVIDER", "stub")
	t.Setenv("DISPATCH_DRY_RUN", "false")
	t.Setenv("DISPATCH_FALLBACK_RECIPIENT", "fallback@example.com")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQS_DISPATCH_QUEUE", "")
	t.Setenv("ENABLE_METRICS", "false")
	return dir
}

func writeResult(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "75201_20260302.json"), []byte(areaResult), 0o644))
}

func TestRun_DispatchesArea(t *testing.T) {
	dir := setTestEnv(t)
	writeResult(t, dir)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--seed=3", "75201", "owner@example.com"}, &stdout, &stderr, config.LoadConfig)

	require.Equal(t, exitOK, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "Processing area 75201")
	assert.Contains(t, out, "roof 1: 1 damage(s), 1000 px, estimate $796.88 -> sent to owner@example.com")
	assert.Contains(t, out, "roof 2: 1 damage(s), 100 px, estimate $500.00 -> sent to owner@example.com")
	assert.Contains(t, out, "sent:    2")
	assert.Contains(t, out, "failed:  0")
	assert.Contains(t, out, "properties notified: 2")
}

func TestRun_DryRunWithoutSendGridKey(t *testing.T) {
	dir := setTestEnv(t)
	writeResult(t, dir)
	t.Setenv("EMAIL_PROVIDER", "sendgrid")
	t.Setenv("SENDGRID_API_KEY", "")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--dry-run", "75201"}, &stdout, &stderr, config.LoadConfig)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "dry run")
	assert.Contains(t, stdout.String(), "sent to fallback@example.com")
	assert.Equal(t, "false", os.Getenv("DISPATCH_DRY_RUN"), "--dry-run must not modify the process environment")
}

func TestRun_DryRunFlagPassesLoadOption(t *testing.T) {
	var stdout, stderr bytes.Buffer
	var got config.Config
	load := func(_ config.SecretProvider, opts ...config.LoadOption) (*config.Config, error) {
		for _, opt := range opts {
			opt(&got)
		}
		return nil, errors.New("stop after load")
	}

	run(context.Background(), []string{"--dry-run", "75201"}, &stdout, &stderr, load)
	assert.True(t, got.Dispatch.DryRun)

	got = config.Config{}
	run(context.Background(), []string{"75201"}, &stdout, &stderr, load)
	assert.False(t, got.Dispatch.DryRun)
}

func TestRun_AnalysisMissing(t *testing.T) {
	setTestEnv(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"75201"}, &stdout, &stderr, config.LoadConfig)

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "error:")
	assert.NotContains(t, stdout.String(), "properties notified")
}

func TestRun_ConfigFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	load := func(config.SecretProvider, ...config.LoadOption) (*config.Config, error) {
		return nil, errors.New("missing SENDGRID_API_KEY")
	}

	code := run(context.Background(), []string{"75201"}, &stdout, &stderr, load)

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "loading configuration")
}

func TestRun_InvalidRecipient(t *testing.T) {
	dir := setTestEnv(t)
	writeResult(t, dir)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"75201", "not-an-email"}, &stdout, &stderr, config.LoadConfig)

	assert.Equal(t, exitUsage, code)
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantErr    bool
		wantArea   string
		wantRecips []string
		wantSeed   *int64
		wantTO     time.Duration
	}{
		{name: "area only", args: []string{"75201"}, wantArea: "75201", wantRecips: []string{}},
		{name: "recipients", args: []string{"75201", "a@example.com", "b@example.com"}, wantArea: "75201", wantRecips: []string{"a@example.com", "b@example.com"}},
		{name: "zero seed is still a seed", args: []string{"--seed=0", "75201"}, wantArea: "75201", wantRecips: []string{}, wantSeed: new(int64)},
		{name: "send timeout", args: []string{"--send-timeout=5s", "75201"}, wantArea: "75201", wantRecips: []string{}, wantTO: 5 * time.Second},
		{name: "missing area", args: nil, wantErr: true},
		{name: "negative timeout", args: []string{"--send-timeout=-1s", "75201"}, wantErr: true},
		{name: "unknown flag", args: []string{"--nope", "75201"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			opts, err := parseArgs(tt.args, &stderr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantArea, opts.areaID)
			assert.Equal(t, tt.wantRecips, opts.recipients)
			assert.Equal(t, tt.wantSeed, opts.seed)
			assert.Equal(t, tt.wantTO, opts.sendTimeout)
		})
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-h"}, &stdout, &stderr, config.LoadConfig)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr.String(), "Usage: roofalert")
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			assert.NotNil(t, newLogger(level, &bytes.Buffer{}))
		})
	}
}
