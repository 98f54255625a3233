// Package dispatch runs one notification batch: it groups the damages of an
// analysis result by roof, prices each damaged property, assigns a recipient
// and hands the result to a Sink.
package dispatch

import (
	"context"
	"time"

	"roofalert/internal/artifacts"
	"roofalert/internal/pricing"
	"roofalert/internal/types"
)

// Notice is everything a Sink needs to notify one property owner.
type Notice struct {
	BatchID   string
	AreaID    string
	RoofID    int
	Recipient string
	View      *types.AnalysisResult
	Estimate  pricing.Estimate
	Artifacts artifacts.Set
}

// Sink delivers a Notice. It reports success as a bool and never returns an
// error; failures are logged by the implementation.
type Sink interface {
	Notify(ctx context.Context, n Notice) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notice) bool

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, n Notice) bool {
	return f(ctx, n)
}

// RecipientSelector picks one recipient from a non-empty pool.
type RecipientSelector interface {
	Pick(pool []string) string
}

// Outcome records what happened to one property.
type Outcome struct {
	RoofID      int                  `json:"roof_id"`
	Recipient   string               `json:"recipient,omitempty"`
	DamageCount int                  `json:"damage_count"`
	AreaPixels  int                  `json:"area_pixels"`
	TotalCost   float64              `json:"total_cost"`
	Status      types.DeliveryStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
	Duration    time.Duration        `json:"duration_ns"`
}

// Tally accumulates outcomes for one batch. It is only mutated by the
// goroutine running the batch.
type Tally struct {
	BatchID    string    `json:"batch_id"`
	AreaID     string    `json:"area_id"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (t *Tally) record(o Outcome) {
	switch o.Status {
	case types.DeliveryStatusSent:
		t.Sent++
	case types.DeliveryStatusSkipped:
		t.Skipped++
	default:
		t.Failed++
	}
	t.Outcomes = append(t.Outcomes, o)
}

// Attempted is the number of properties a send was attempted for.
func (t *Tally) Attempted() int {
	return t.Sent + t.Failed
}

// BatchRecord describes a batch when it starts.
type BatchRecord struct {
	ID             string
	AreaID         string
	DamagedRoofs   int
	OrphanDamages  int
	RecipientCount int
	StartedAt      time.Time
}

// Ledger persists batch progress for auditing. Errors are logged by the
// orchestrator and never change the tally.
type Ledger interface {
	StartBatch(ctx context.Context, b BatchRecord) error
	RecordOutcome(ctx context.Context, batchID string, o Outcome) error
	FinishBatch(ctx context.Context, t *Tally) error
}

// Metrics receives delivery counters.
type Metrics interface {
	RecordDelivery(ctx context.Context, status types.DeliveryStatus)
	RecordBatch(ctx context.Context, t *Tally)
}
