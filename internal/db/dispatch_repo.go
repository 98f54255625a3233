package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"roofalert/internal/dispatch"
	"roofalert/internal/types"
)

// BatchView is a stored batch with its outcomes.
type BatchView struct {
	ID             string             `json:"batch_id"`
	AreaID         string             `json:"area_id"`
	Status         types.BatchStatus  `json:"status"`
	DamagedRoofs   int                `json:"damaged_roofs"`
	OrphanDamages  int                `json:"orphan_damages"`
	RecipientCount int                `json:"recipient_count"`
	Sent           int                `json:"sent"`
	Failed         int                `json:"failed"`
	Skipped        int                `json:"skipped"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
	Outcomes       []dispatch.Outcome `json:"outcomes"`
}

// DispatchRepository provides data access for the dispatch_batches and
// dispatch_outcomes tables. It implements dispatch.Ledger.
type DispatchRepository struct {
	db DBTX
}

// NewDispatchRepository creates a DispatchRepository backed by the given
// database connection (pool or transaction).
func NewDispatchRepository(db DBTX) *DispatchRepository {
	return &DispatchRepository{db: db}
}

var _ dispatch.Ledger = (*DispatchRepository)(nil)

// StartBatch inserts the batch row in the running state. Replaying a batch id
// resets its counters.
func (r *DispatchRepository) StartBatch(ctx context.Context, b dispatch.BatchRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO dispatch_batches
		 (id, area_id, status, damaged_roofs, orphan_damages, recipient_count, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   damaged_roofs = EXCLUDED.damaged_roofs,
		   orphan_damages = EXCLUDED.orphan_damages,
		   recipient_count = EXCLUDED.recipient_count,
		   sent = 0, failed = 0, skipped = 0,
		   started_at = EXCLUDED.started_at,
		   finished_at = NULL`,
		b.ID,
		b.AreaID,
		string(types.BatchStatusRunning),
		b.DamagedRoofs,
		b.OrphanDamages,
		b.RecipientCount,
		b.StartedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to start dispatch batch", err)
	}
	return nil
}

// RecordOutcome upserts one property outcome.
func (r *DispatchRepository) RecordOutcome(ctx context.Context, batchID string, o dispatch.Outcome) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO dispatch_outcomes
		 (batch_id, roof_id, recipient, damage_count, area_pixels, total_cost, status, reason, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (batch_id, roof_id) DO UPDATE SET
		   recipient = EXCLUDED.recipient,
		   damage_count = EXCLUDED.damage_count,
		   area_pixels = EXCLUDED.area_pixels,
		   total_cost = EXCLUDED.total_cost,
		   status = EXCLUDED.status,
		   reason = EXCLUDED.reason,
		   duration_ms = EXCLUDED.duration_ms,
		   recorded_at = NOW()`,
		batchID,
		o.RoofID,
		o.Recipient,
		o.DamageCount,
		o.AreaPixels,
		o.TotalCost,
		string(o.Status),
		o.Reason,
		o.Duration.Milliseconds(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record dispatch outcome", err)
	}
	return nil
}

// FinishBatch stores the final counters and marks the batch completed.
func (r *DispatchRepository) FinishBatch(ctx context.Context, t *dispatch.Tally) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE dispatch_batches
		 SET status = $2, sent = $3, failed = $4, skipped = $5, finished_at = $6
		 WHERE id = $1`,
		t.BatchID,
		string(types.BatchStatusCompleted),
		t.Sent,
		t.Failed,
		t.Skipped,
		t.FinishedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish dispatch batch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundBatch, "dispatch batch not found", nil,
			map[string]any{"batch_id": t.BatchID})
	}
	return nil
}

// GetBatch loads a batch and its outcomes ordered by roof id.
func (r *DispatchRepository) GetBatch(ctx context.Context, batchID string) (*BatchView, error) {
	var (
		v      BatchView
		status string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, area_id, status, damaged_roofs, orphan_damages, recipient_count,
		        sent, failed, skipped, started_at, finished_at
		 FROM dispatch_batches WHERE id = $1`,
		batchID,
	).Scan(
		&v.ID, &v.AreaID, &status, &v.DamagedRoofs, &v.OrphanDamages, &v.RecipientCount,
		&v.Sent, &v.Failed, &v.Skipped, &v.StartedAt, &v.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundBatch, "dispatch batch not found", err,
				map[string]any{"batch_id": batchID})
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load dispatch batch", err)
	}
	v.Status = types.BatchStatus(status)

	outcomes, err := r.ListOutcomes(ctx, batchID)
	if err != nil {
		return nil, err
	}
	v.Outcomes = outcomes
	return &v, nil
}

// ListOutcomes returns the outcomes of a batch ordered by roof id.
func (r *DispatchRepository) ListOutcomes(ctx context.Context, batchID string) ([]dispatch.Outcome, error) {
	rows, err := r.db.Query(ctx,
		`SELECT roof_id, recipient, damage_count, area_pixels, total_cost, status, reason, duration_ms
		 FROM dispatch_outcomes WHERE batch_id = $1 ORDER BY roof_id`,
		batchID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list dispatch outcomes", err)
	}
	defer rows.Close()

	outcomes := []dispatch.Outcome{}
	for rows.Next() {
		var (
			o          dispatch.Outcome
			status     string
			durationMS int64
		)
		if err := rows.Scan(&o.RoofID, &o.Recipient, &o.DamageCount, &o.AreaPixels,
			&o.TotalCost, &status, &o.Reason, &durationMS); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan dispatch outcome", err)
		}
		o.Status = types.DeliveryStatus(status)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate dispatch outcomes", err)
	}
	return outcomes, nil
}
