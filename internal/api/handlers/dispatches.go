// Package handlers contains the HTTP handlers of the RoofAlert API.
//
// Dispatch endpoints:
//   - POST /v1/dispatches            enqueue (202) or run inline (200)
//   - GET  /v1/dispatches/{batchID}  read a batch from the audit ledger
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roofalert/internal/core"
	"roofalert/internal/db"
	"roofalert/internal/dispatch"
	"roofalert/internal/types"
)

// DispatchRunner runs a batch synchronously.
type DispatchRunner interface {
	Run(ctx context.Context, req types.DispatchRequest) (*dispatch.Tally, error)
}

// DispatchEnqueuer hands a batch to the dispatch worker.
type DispatchEnqueuer interface {
	Publish(ctx context.Context, req types.DispatchRequest) (types.DispatchRequest, error)
}

// BatchReader reads stored batches.
type BatchReader interface {
	GetBatch(ctx context.Context, batchID string) (*db.BatchView, error)
}

// DispatchAccepted is the 202 body for an enqueued batch.
type DispatchAccepted struct {
	BatchID    string `json:"batch_id"`
	AreaID     string `json:"area_id"`
	Recipients int    `json:"recipients"`
	Status     string `json:"status"`
}

// DispatchHandler serves the dispatch endpoints. When an enqueuer is
// configured POST enqueues; otherwise it runs the batch inline.
type DispatchHandler struct {
	runner  DispatchRunner
	queue   DispatchEnqueuer
	batches BatchReader
	logger  *slog.Logger
}

// NewDispatchHandler creates a DispatchHandler. queue and batches may be nil.
func NewDispatchHandler(runner DispatchRunner, queue DispatchEnqueuer, batches BatchReader, logger *slog.Logger) *DispatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchHandler{
		runner:  runner,
		queue:   queue,
		batches: batches,
		logger:  logger,
	}
}

// RegisterRoutes mounts the dispatch endpoints.
func (h *DispatchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/{batchID}", h.HandleGet)
}

// HandleCreate handles POST /v1/dispatches.
func (h *DispatchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.DispatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := types.ValidateDispatchRequest(&req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = types.GetRequestID(r.Context())
	}

	if h.queue != nil {
		queued, err := h.queue.Publish(r.Context(), req)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: DispatchAccepted{
			BatchID:    queued.BatchID,
			AreaID:     queued.AreaID,
			Recipients: len(queued.Recipients),
			Status:     "queued",
		}})
		return
	}

	if h.runner == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "dispatch is not configured", nil))
		return
	}
	tally, err := h.runner.Run(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: tally})
}

// HandleGet handles GET /v1/dispatches/{batchID}.
func (h *DispatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if h.batches == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundBatch, "dispatch ledger is not configured", nil))
		return
	}

	batch, err := h.batches.GetBatch(r.Context(), batchID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: batch})
}
