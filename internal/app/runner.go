package app

import (
	"context"
	"log/slog"

	"roofalert/internal/analysis"
	"roofalert/internal/artifacts"
	"roofalert/internal/dispatch"
	"roofalert/internal/pricing"
	"roofalert/internal/queue"
	"roofalert/internal/types"
)

// Runner fetches the analysis for an area and dispatches it.
type Runner struct {
	source    analysis.Source
	sink      dispatch.Sink
	estimator *pricing.Estimator
	registry  artifacts.Registry
	ledger    dispatch.Ledger
	metrics   dispatch.Metrics
	observer  func(dispatch.Outcome)
	cfg       dispatch.Config
	seed      uint64
	logger    *slog.Logger
}

// Run executes one batch for req.AreaID. A missing batch id is generated.
// req.Seed, when set, overrides the configured selector seed.
//
// An analysis failure is returned as an upstream error and nothing is sent.
// After that, errors come only from the orchestrator (cancelled context) and
// are returned together with the partial tally.
func (r *Runner) Run(ctx context.Context, req types.DispatchRequest) (*dispatch.Tally, error) {
	if err := types.ValidateDispatchRequest(&req); err != nil {
		return nil, err
	}
	if req.BatchID == "" {
		req.BatchID = queue.NewBatchID()
	}
	ctx = types.WithBatchID(ctx, req.BatchID)
	if req.RequestID != "" {
		ctx = types.WithRequestID(ctx, req.RequestID)
	}
	base := r.logger
	if req.RequestID != "" {
		base = base.With("request_id", req.RequestID)
	}
	logger := base.With("batch_id", req.BatchID, "area_id", req.AreaID)

	result, err := r.source.Analyze(ctx, req.AreaID)
	if err != nil {
		logger.Error("analysis unavailable", "error", err)
		if types.CodeOf(err) == "" {
			err = types.NewAppError(types.ErrCodeUpstreamAnalysis, "analysis unavailable for area "+req.AreaID, err)
		}
		return nil, err
	}
	logger.Info("analysis loaded",
		"roofs", len(result.Roofs),
		"damages", len(result.Damages),
		"roofs_with_damage", result.RoofsWithDamage,
	)

	return r.orchestrator(req, base).Run(ctx, result, req.Recipients)
}

func (r *Runner) orchestrator(req types.DispatchRequest, logger *slog.Logger) *dispatch.Orchestrator {
	opts := []dispatch.Option{
		dispatch.WithEstimator(r.estimator),
		dispatch.WithSelector(r.selector(req.Seed)),
	}
	if r.registry != nil {
		opts = append(opts, dispatch.WithRegistry(r.registry))
	}
	if r.ledger != nil {
		opts = append(opts, dispatch.WithLedger(r.ledger))
	}
	if r.metrics != nil {
		opts = append(opts, dispatch.WithMetrics(r.metrics))
	}
	if r.observer != nil {
		opts = append(opts, dispatch.WithObserver(r.observer))
	}
	return dispatch.NewOrchestrator(r.sink, r.cfg, logger, opts...)
}

func (r *Runner) selector(override *int64) dispatch.RecipientSelector {
	switch {
	case override != nil:
		return dispatch.NewRandomSelector(uint64(*override))
	case r.seed != 0:
		return dispatch.NewRandomSelector(r.seed)
	default:
		return dispatch.NewTimeSeededSelector()
	}
}
