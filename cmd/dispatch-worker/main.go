// Package main is the entrypoint for the Dispatch Worker Lambda function.
//
// The worker consumes dispatch requests published by the API to the dispatch
// SQS queue and runs one batch per message through app.Runner.
//
// Handler flow, per SQS record:
//  1. Decode and validate the types.DispatchRequest body. Malformed messages
//     are logged and ACKed; retrying them cannot succeed.
//  2. Record queue lag from the SentTimestamp attribute.
//  3. Run the batch. Only an upstream failure (analysis unavailable) is
//     reported in batchItemFailures so SQS redelivers the message. Per-property
//     delivery failures are part of the tally and are never retried.
//
// In APP_ENV=local the worker reads one SQS event as JSON from stdin instead of
// starting the Lambda runtime.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"roofalert/internal/app"
	"roofalert/internal/config"
	"roofalert/internal/dispatch"
	"roofalert/internal/queue"
	"roofalert/internal/types"
)

// BatchRunner runs one dispatch batch.
type BatchRunner interface {
	Run(ctx context.Context, req types.DispatchRequest) (*dispatch.Tally, error)
}

// LagRecorder receives the time a message spent in the queue.
type LagRecorder interface {
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// Handler holds the dependencies for the dispatch worker Lambda handler.
type Handler struct {
	runner BatchRunner
	lag    LagRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a Handler. lag may be nil.
func NewHandler(runner BatchRunner, lag LagRecorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, lag: lag, logger: logger, now: time.Now}
}

// Handle processes an SQS event. Each record is processed independently and
// failed records are returned as partial batch failures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	req, err := queue.Decode(record.Body)
	if err != nil {
		// Permanent: ACK so the message is not redelivered.
		h.logger.Error("discarding invalid dispatch message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"message_id", record.MessageId,
		"batch_id", req.BatchID,
		"area_id", req.AreaID,
		"request_id", req.RequestID,
	)

	if h.lag != nil {
		if sent, ok := record.Attributes["SentTimestamp"]; ok {
			if sentAt, err := parseMillisTimestamp(sent); err == nil {
				h.lag.RecordQueueLag(ctx, h.now().Sub(sentAt))
			}
		}
	}

	logger.Info("processing dispatch message", "recipients", len(req.Recipients))

	tally, err := h.runner.Run(ctx, req)
	if tally == nil {
		if types.IsUpstream(err) {
			return fmt.Errorf("dispatch batch %s: %w", req.BatchID, err)
		}
		logger.Error("dispatch batch rejected", "error", err)
		return nil
	}
	if err != nil {
		logger.Warn("dispatch batch interrupted", "error", err)
	}

	logger.Info("dispatch batch complete",
		"sent", tally.Sent,
		"failed", tally.Failed,
		"skipped", tally.Skipped,
	)
	return nil
}

// parseMillisTimestamp parses a millisecond-epoch string such as the SQS
// SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(config.NewSSMProvider(config.RegionFromEnv()))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("dispatch worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building application: %w", err)
	}
	defer a.Close()

	var lag LagRecorder
	if a.Metrics != nil {
		lag = a.Metrics
	}
	handler := NewHandler(a.Runner, lag, logger)

	if cfg.Environment == "local" {
		return runLocal(ctx, handler, os.Stdin, os.Stderr, logger)
	}

	lambda.Start(handler.Handle)
	return nil
}

// runLocal reads one JSON SQS event from in and handles it. Partial failures
// are written to out.
// Usage: echo '{"Records":[{"messageId":"1","body":"{\"area_id\":\"75201\"}"}]}' | go run ./cmd/dispatch-worker
func runLocal(ctx context.Context, handler *Handler, in io.Reader, out io.Writer, logger *slog.Logger) error {
	logger.Info("APP_ENV=local: reading SQS event from stdin")
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no input received on stdin")
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}

	response, err := handler.Handle(ctx, sqsEvent)
	if err != nil {
		return fmt.Errorf("handler execution failed: %w", err)
	}
	if len(response.BatchItemFailures) > 0 {
		logger.Warn("handler reported partial failures", "failed_count", len(response.BatchItemFailures))
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(out, string(respJSON))
	}
	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}

// newLogger creates a structured JSON slog.Logger for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

