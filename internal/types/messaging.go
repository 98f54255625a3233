package types

// DispatchRequest is the SQS payload asking a worker to run one dispatch batch.
// JSON tags use snake_case to match the HTTP API request body.
type DispatchRequest struct {
	BatchID    string   `json:"batch_id"`
	AreaID     string   `json:"area_id" validate:"required,max=64"`
	Recipients []string `json:"recipients" validate:"omitempty,dive,email"`

	// Seed pins recipient selection when non-nil.
	Seed *int64 `json:"seed,omitempty"`

	// Observability
	RequestID string `json:"request_id,omitempty"`
}
