package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"roofalert/internal/types"
)

func noopSleep(context.Context, time.Duration) error { return nil }

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond}
}

func newTestClient(policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, BreakerSettings{Name: "test"}, policy, "RoofAlert-Test/1.0", opts...)
}

func mustRequest(t *testing.T, ctx context.Context, method, url, body string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return req
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	resp, err := newTestClient(DefaultRetryPolicy()).Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, ""))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestDo_InjectsHeaders(t *testing.T) {
	var gotUA, gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotID = r.Header.Get("X-Request-Id")
	}))
	defer server.Close()

	ctx := types.WithRequestID(context.Background(), "req-42")
	resp, err := newTestClient(fastPolicy(0)).Do(mustRequest(t, ctx, http.MethodGet, server.URL, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotUA != "RoofAlert-Test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotID != "req-42" {
		t.Errorf("X-Request-Id = %q", gotID)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer server.Close()

	resp, err := newTestClient(fastPolicy(3)).Do(mustRequest(t, context.Background(), http.MethodPost, server.URL, `{"area":"75201"}`))
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	defer resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"area":"75201"}` {
		t.Errorf("request body not replayed on retry: %s", body)
	}
}

func TestDo_ExhaustedRetriesUsesFailureCode(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(fastPolicy(2), WithFailureCode(types.ErrCodeUpstreamAnalysis))
	_, err := client.Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, ""))

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamAnalysis {
		t.Errorf("Code = %q, want %q", appErr.Code, types.ErrCodeUpstreamAnalysis)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDo_429MapsToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var waits []time.Duration
	client := newTestClient(RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 5 * time.Second},
		WithSleepFunc(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}))

	_, err := client.Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, ""))
	if types.CodeOf(err) != types.ErrCodeUpstreamRateLimited {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if len(waits) != 1 || waits[0] != time.Second {
		t.Errorf("expected one 1s Retry-After wait, got %v", waits)
	}
}

func TestDo_4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	resp, err := newTestClient(fastPolicy(3)).Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, ""))
	if err != nil {
		t.Fatalf("4xx should be returned as a response, got error %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || calls.Load() != 1 {
		t.Errorf("status=%d calls=%d", resp.StatusCode, calls.Load())
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewBaseClient(nil, BreakerSettings{Name: "trip", TripAfter: 2, OpenFor: time.Minute}, fastPolicy(0), "", WithSleepFunc(noopSleep))
	for i := 0; i < 2; i++ {
		client.Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, ""))
	}
	before := calls.Load()

	_, err := client.Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, ""))
	if err == nil {
		t.Fatal("expected error with open breaker")
	}
	if calls.Load() != before {
		t.Error("open breaker should short-circuit the request")
	}
	if !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDo_ContextCancelledStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(fastPolicy(5), WithSleepFunc(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, err := client.Do(mustRequest(t, ctx, http.MethodGet, server.URL, ""))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestBackoffBounds(t *testing.T) {
	c := newTestClient(RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second})
	for attempt := 0; attempt < 6; attempt++ {
		d := c.backoff(attempt, nil)
		if d < 100*time.Millisecond || d > time.Second {
			t.Errorf("attempt %d: backoff %v out of bounds", attempt, d)
		}
	}
}
