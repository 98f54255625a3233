package external

import (
	"context"

	"roofalert/internal/types"
)

// EmailProvider transmits pre-rendered email. Implementations return the
// provider's message id on success and an AppError on failure.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
