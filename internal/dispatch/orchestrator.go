package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"roofalert/internal/artifacts"
	"roofalert/internal/attribution"
	"roofalert/internal/pricing"
	"roofalert/internal/types"
)

// Phase names the orchestrator's batch state.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseGrouping   Phase = "grouping"
	PhaseEstimating Phase = "estimating"
	PhaseAssigning  Phase = "assigning"
	PhaseSending    Phase = "sending"
	PhaseSummarized Phase = "summarized"
)

// DefaultFallbackRecipient receives notices when no recipients are supplied.
const DefaultFallbackRecipient = "aliyannew16@gmail.com"

// Config holds orchestrator settings.
type Config struct {
	// FallbackRecipient is used when the recipient pool is empty.
	FallbackRecipient string
	// SendTimeout bounds each Sink call. Zero disables the bound.
	SendTimeout time.Duration
}

// Orchestrator runs dispatch batches. It is safe to reuse across batches but
// a single batch runs sequentially.
type Orchestrator struct {
	sink      Sink
	estimator *pricing.Estimator
	selector  RecipientSelector
	registry  artifacts.Registry
	ledger    Ledger
	metrics   Metrics
	observer  func(Outcome)
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEstimator sets the cost estimator.
func WithEstimator(e *pricing.Estimator) Option {
	return func(o *Orchestrator) { o.estimator = e }
}

// WithSelector sets the recipient selector.
func WithSelector(s RecipientSelector) Option {
	return func(o *Orchestrator) { o.selector = s }
}

// WithRegistry sets where batch artifacts are looked up.
func WithRegistry(r artifacts.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithLedger enables audit persistence.
func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithMetrics enables delivery metrics.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithObserver registers a callback invoked after every property outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator delivering through sink.
func NewOrchestrator(sink Sink, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FallbackRecipient == "" {
		cfg.FallbackRecipient = DefaultFallbackRecipient
	}
	o := &Orchestrator{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.estimator == nil {
		o.estimator = pricing.NewEstimator()
	}
	if o.selector == nil {
		o.selector = NewTimeSeededSelector()
	}
	return o
}

// Run dispatches one notice per damaged roof in result and returns the tally.
//
// Properties are processed in order of the first damage attributed to them.
// A roof missing from result is skipped, and a failure or panic while
// handling one property is tallied as failed without stopping the batch. An
// error is returned only for a nil result or a cancelled context; the tally
// accumulated so far is returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, result *types.AnalysisResult, recipients []string) (*Tally, error) {
	if result == nil {
		return nil, types.NewAppError(types.ErrCodeValidationAnalysis, "analysis result is nil", nil)
	}

	batchID := types.GetBatchID(ctx)
	if batchID == "" {
		batchID = uuid.NewString()
		ctx = types.WithBatchID(ctx, batchID)
	}
	logger := o.logger.With("batch_id", batchID, "area_id", result.AreaID)
	tally := &Tally{BatchID: batchID, AreaID: result.AreaID, StartedAt: o.now()}
	logger.Info("dispatch batch started", "phase", PhaseInit, "recipients", len(recipients))

	grouping := attribution.GroupByRoof(result.Damages)
	damaged := attribution.DamagedRoofIDs(grouping)
	logger.Info("damages grouped",
		"phase", PhaseGrouping,
		"damaged_roofs", len(damaged),
		"orphan_damages", grouping.Orphans(),
	)

	if len(damaged) == 0 {
		tally.FinishedAt = o.now()
		logger.Info("no damaged roofs, nothing to dispatch", "phase", PhaseSummarized)
		return tally, nil
	}

	set := o.lookupArtifacts(ctx, logger, result.AreaID)

	if o.ledger != nil {
		err := o.ledger.StartBatch(ctx, BatchRecord{
			ID:             batchID,
			AreaID:         result.AreaID,
			DamagedRoofs:   len(damaged),
			OrphanDamages:  grouping.Orphans(),
			RecipientCount: len(recipients),
			StartedAt:      tally.StartedAt,
		})
		if err != nil {
			logger.Error("failed to record batch start", "error", err)
		}
	}

	var runErr error
	for _, roofID := range damaged {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("dispatch batch %s interrupted: %w", batchID, err)
			logger.Warn("dispatch batch interrupted", "error", err, "remaining", len(damaged)-len(tally.Outcomes))
			break
		}

		damages := grouping.Damages(roofID)
		if len(damages) == 0 {
			continue
		}

		outcome := o.dispatchOne(ctx, logger.With("roof_id", roofID), result, roofID, damages, recipients, set)
		tally.record(outcome)
		o.afterOutcome(ctx, logger, batchID, outcome)
	}

	tally.FinishedAt = o.now()
	logger.Info("dispatch batch finished",
		"phase", PhaseSummarized,
		"sent", tally.Sent,
		"failed", tally.Failed,
		"skipped", tally.Skipped,
		"duration_ms", tally.FinishedAt.Sub(tally.StartedAt).Milliseconds(),
	)

	if o.ledger != nil {
		if err := o.ledger.FinishBatch(ctx, tally); err != nil {
			logger.Error("failed to record batch finish", "error", err)
		}
	}
	if o.metrics != nil {
		o.metrics.RecordBatch(ctx, tally)
	}
	return tally, runErr
}

func (o *Orchestrator) lookupArtifacts(ctx context.Context, logger *slog.Logger, areaID string) artifacts.Set {
	if o.registry == nil {
		return artifacts.Set{}
	}
	set, err := o.registry.Lookup(ctx, areaID)
	if err != nil {
		logger.Warn("artifact lookup failed, sending without attachments", "error", err)
		return artifacts.Set{}
	}
	names := make([]string, 0, 3)
	for _, a := range set.All() {
		names = append(names, a.Name)
	}
	logger.Info("artifacts located", "artifacts", strings.Join(names, ","))
	return set
}

func (o *Orchestrator) dispatchOne(
	ctx context.Context,
	logger *slog.Logger,
	result *types.AnalysisResult,
	roofID int,
	damages []types.DamageDetection,
	pool []string,
	set artifacts.Set,
) (out Outcome) {
	start := o.now()
	out = Outcome{
		RoofID:      roofID,
		DamageCount: len(damages),
		AreaPixels:  types.DamageAreaPixels(damages),
	}
	defer func() {
		if r := recover(); r != nil {
			out.Status = types.DeliveryStatusFailed
			out.Reason = fmt.Sprintf("panic: %v", r)
			logger.Error("panic while dispatching property",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		out.Duration = o.now().Sub(start)
	}()

	view, err := attribution.BuildPropertyView(result, roofID, damages)
	if err != nil {
		out.Reason = err.Error()
		if types.IsNotFound(err) {
			out.Status = types.DeliveryStatusSkipped
			logger.Warn("roof not found in analysis, skipping", "phase", PhaseEstimating, "error", err)
			return out
		}
		out.Status = types.DeliveryStatusFailed
		logger.Error("failed to build property view", "phase", PhaseEstimating, "error", err)
		return out
	}

	estimate := o.estimator.Estimate(view.Damages)
	out.TotalCost = estimate.Total
	logger.Debug("property estimated",
		"phase", PhaseEstimating,
		"total_cost", estimate.Total,
		"floor_applied", estimate.FloorApplied,
	)

	recipient := o.cfg.FallbackRecipient
	if len(pool) > 0 {
		if picked := o.selector.Pick(pool); picked != "" {
			recipient = picked
		}
	}
	out.Recipient = recipient
	logger.Debug("recipient assigned", "phase", PhaseAssigning, "pool_size", len(pool))

	notice := Notice{
		BatchID:   types.GetBatchID(ctx),
		AreaID:    result.AreaID,
		RoofID:    roofID,
		Recipient: recipient,
		View:      view,
		Estimate:  estimate,
		Artifacts: set,
	}

	ok, reason := o.send(ctx, notice)
	if ok {
		out.Status = types.DeliveryStatusSent
		logger.Info("property notified", "phase", PhaseSending, "total_cost", estimate.Total)
	} else {
		out.Status = types.DeliveryStatusFailed
		out.Reason = reason
		logger.Warn("property notification failed", "phase", PhaseSending, "reason", reason)
	}
	return out
}

// send calls the sink synchronously under the configured timeout. The sink
// owns cancellation: a sink that ignores the deadline delays the batch but
// never overlaps the next send. A sink that reports success after the
// deadline still counts as sent, since the email went out.
func (o *Orchestrator) send(ctx context.Context, n Notice) (bool, string) {
	if o.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.SendTimeout)
		defer cancel()
	}

	if o.sink.Notify(ctx, n) {
		return true, ""
	}
	if err := ctx.Err(); err != nil {
		return false, err.Error()
	}
	return false, "sink reported failure"
}

func (o *Orchestrator) afterOutcome(ctx context.Context, logger *slog.Logger, batchID string, out Outcome) {
	if o.ledger != nil {
		if err := o.ledger.RecordOutcome(ctx, batchID, out); err != nil {
			logger.Error("failed to record outcome", "roof_id", out.RoofID, "error", err)
		}
	}
	if o.metrics != nil {
		o.metrics.RecordDelivery(ctx, out.Status)
	}
	if o.observer != nil {
		o.observer(out)
	}
}
