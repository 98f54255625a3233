// Package main implements the roofalert CLI, which runs one notification
// batch for an area and prints per-property progress and a final tally.
//
// Usage:
//
//	roofalert [flags] <area-id> [recipient ...]
//	roofalert --dry-run --seed=7 75201 a@example.com b@example.com
//
// With no recipients every property goes to DISPATCH_FALLBACK_RECIPIENT.
// Configuration comes from the environment (or a .env file). The process
// exits non-zero only when configuration loading or the analysis fetch fails;
// individual delivery failures are reported in the tally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roofalert/internal/app"
	"roofalert/internal/config"
	"roofalert/internal/dispatch"
	"roofalert/internal/types"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	areaID      string
	recipients  []string
	seed        *int64
	sendTimeout time.Duration
	dryRun      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, config.LoadConfig))
}

// run parses args, builds the application and executes one batch. Extra
// build options let tests replace external clients.
func run(
	ctx context.Context,
	args []string,
	stdout, stderr io.Writer,
	load func(config.SecretProvider, ...config.LoadOption) (*config.Config, error),
	buildOpts ...app.Option,
) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	var loadOpts []config.LoadOption
	if opts.dryRun {
		loadOpts = append(loadOpts, config.WithDryRun())
	}

	cfg, err := load(config.NewSSMProvider(config.RegionFromEnv()), loadOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "error: loading configuration: %v\n", err)
		return exitFailure
	}
	if opts.sendTimeout > 0 {
		cfg.Dispatch.SendTimeout = opts.sendTimeout
	}

	logger := newLogger(cfg.LogLevel, stderr)

	buildOpts = append(buildOpts, app.WithObserver(func(o dispatch.Outcome) {
		printOutcome(stdout, o)
	}))
	a, err := app.Build(ctx, cfg, logger, buildOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "error: initializing: %v\n", err)
		return exitFailure
	}
	defer a.Close()

	if cfg.Dispatch.DryRun {
		fmt.Fprintln(stdout, "dry run: emails are rendered but not sent")
	}
	fmt.Fprintf(stdout, "Processing area %s\n", opts.areaID)

	tally, err := a.Runner.Run(ctx, types.DispatchRequest{
		AreaID:     opts.areaID,
		Recipients: opts.recipients,
		Seed:       opts.seed,
	})
	if tally == nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if types.CodeOf(err) == types.ErrCodeValidationInvalidPayload {
			return exitUsage
		}
		return exitFailure
	}
	if err != nil {
		fmt.Fprintf(stderr, "batch interrupted: %v\n", err)
	}
	printTally(stdout, tally)
	return exitOK
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var (
		opts options
		seed int64
	)
	fs := flag.NewFlagSet("roofalert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Int64Var(&seed, "seed", 0, "Seed for recipient selection (reproducible assignment)")
	fs.DurationVar(&opts.sendTimeout, "send-timeout", 0, "Per-property send timeout (overrides DISPATCH_SEND_TIMEOUT)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Render emails with the stub provider instead of sending")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: roofalert [flags] <area-id> [recipient ...]\n\n")
		fmt.Fprintf(stderr, "Send a damage report for every damaged roof in an area.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.seed = &seed
		}
	})

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return opts, errors.New("area id is required")
	}
	if opts.sendTimeout < 0 {
		return opts, fmt.Errorf("--send-timeout must not be negative")
	}
	opts.areaID = rest[0]
	opts.recipients = rest[1:]
	return opts, nil
}

func printOutcome(w io.Writer, o dispatch.Outcome) {
	switch o.Status {
	case types.DeliveryStatusSent:
		fmt.Fprintf(w, "  roof %d: %d damage(s), %d px, estimate $%.2f -> sent to %s\n",
			o.RoofID, o.DamageCount, o.AreaPixels, o.TotalCost, o.Recipient)
	case types.DeliveryStatusSkipped:
		fmt.Fprintf(w, "  roof %d: skipped (%s)\n", o.RoofID, o.Reason)
	default:
		fmt.Fprintf(w, "  roof %d: %d damage(s), %d px, estimate $%.2f -> FAILED for %s (%s)\n",
			o.RoofID, o.DamageCount, o.AreaPixels, o.TotalCost, o.Recipient, o.Reason)
	}
}

func printTally(w io.Writer, t *dispatch.Tally) {
	fmt.Fprintf(w, "\nBatch %s complete for area %s\n", t.BatchID, t.AreaID)
	fmt.Fprintf(w, "  sent:    %d\n", t.Sent)
	fmt.Fprintf(w, "  failed:  %d\n", t.Failed)
	if t.Skipped > 0 {
		fmt.Fprintf(w, "  skipped: %d\n", t.Skipped)
	}
	fmt.Fprintf(w, "  properties notified: %d\n", t.Sent)
}

// newLogger creates a JSON slog.Logger at the given level. The CLI logs to
// stderr so stdout carries only the report.
func newLogger(level string, w io.Writer) *slog.Logger {
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
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
