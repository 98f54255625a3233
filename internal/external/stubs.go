package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"roofalert/internal/types"
)

// StubEmailProvider logs messages instead of sending them. It backs dry runs
// and local development, and keeps every message for inspection.
type StubEmailProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []types.SendInput
}

// NewStubEmailProvider creates a StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

// Send implements EmailProvider.
func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, input)
	n := len(s.sent)
	s.mu.Unlock()

	names := make([]string, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		names = append(names, a.Filename)
	}
	s.logger.InfoContext(ctx, "stub: email not sent",
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
		"attachments", names,
	)
	return fmt.Sprintf("stub-msg-%d", n), nil
}

// Sent returns a copy of every message passed to Send.
func (s *StubEmailProvider) Sent() []types.SendInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SendInput, len(s.sent))
	copy(out, s.sent)
	return out
}

var _ EmailProvider = (*StubEmailProvider)(nil)
