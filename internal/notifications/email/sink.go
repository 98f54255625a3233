package email

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"roofalert/internal/artifacts"
	"roofalert/internal/dispatch"
	"roofalert/internal/external"
	"roofalert/internal/types"
)

// DefaultMaxAttachmentBytes caps a single attachment. Larger artifacts are
// left out of the message.
const DefaultMaxAttachmentBytes int64 = 10 << 20

// Sink delivers damage reports by email. It implements dispatch.Sink.
type Sink struct {
	provider  external.EmailProvider
	renderer  *Renderer
	registry  artifacts.Registry
	fallback  string
	maxAttach int64
	logger    *slog.Logger
}

// SinkConfig holds the collaborators of a Sink. Registry may be nil, in which
// case reports are sent without attachments.
type SinkConfig struct {
	Provider           external.EmailProvider
	Renderer           *Renderer
	Registry           artifacts.Registry
	FallbackRecipient  string
	MaxAttachmentBytes int64
	Logger             *slog.Logger
}

// NewSink creates a Sink.
func NewSink(cfg SinkConfig) *Sink {
	s := &Sink{
		provider:  cfg.Provider,
		renderer:  cfg.Renderer,
		registry:  cfg.Registry,
		fallback:  cfg.FallbackRecipient,
		maxAttach: cfg.MaxAttachmentBytes,
		logger:    cfg.Logger,
	}
	if s.fallback == "" {
		s.fallback = dispatch.DefaultFallbackRecipient
	}
	if s.maxAttach <= 0 {
		s.maxAttach = DefaultMaxAttachmentBytes
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Notify renders and sends the report for one property. It returns false on
// any rendering or provider failure; the failure is logged here.
func (s *Sink) Notify(ctx context.Context, n dispatch.Notice) bool {
	dest := n.Recipient
	if dest == "" {
		dest = s.fallback
	}
	log := s.logger.With("batch_id", n.BatchID, "roof_id", n.RoofID, "dest", RedactEmail(dest))
	log.InfoContext(ctx, "attempting email delivery")

	rendered, sender, err := s.renderer.Render(n)
	if err != nil {
		log.ErrorContext(ctx, "template rendering failed", "error", err)
		return false
	}

	msgID, err := s.provider.Send(ctx, types.SendInput{
		To:          dest,
		From:        sender,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		Attachments: s.attachments(ctx, log, n.Artifacts),
		ReferenceID: ReferenceID(n.BatchID, n.RoofID),
	})
	if err != nil {
		if IsBlocklistError(err) {
			log.WarnContext(ctx, "recipient blocked by provider")
			return false
		}
		log.ErrorContext(ctx, "email delivery failed", "error", err, "code", string(types.CodeOf(err)))
		return false
	}

	log.InfoContext(ctx, "email sent", "message_id", msgID)
	return true
}

// attachments reads every present artifact. Unreadable or oversized artifacts
// are logged and left out.
func (s *Sink) attachments(ctx context.Context, log *slog.Logger, set artifacts.Set) []types.Attachment {
	if s.registry == nil {
		return nil
	}
	var out []types.Attachment
	for _, a := range set.All() {
		if a.Size > s.maxAttach {
			log.WarnContext(ctx, "artifact too large to attach", "artifact", a.Name, "size", a.Size)
			continue
		}
		content, err := s.read(ctx, a)
		if err != nil {
			log.WarnContext(ctx, "artifact not attached", "artifact", a.Name, "error", err)
			continue
		}
		out = append(out, types.Attachment{
			Filename:    a.AttachmentName(),
			ContentType: a.ContentType(),
			Content:     content,
		})
	}
	return out
}

func (s *Sink) read(ctx context.Context, a artifacts.Artifact) ([]byte, error) {
	rc, err := s.registry.Open(ctx, a)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, s.maxAttach+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.Name, err)
	}
	if int64(len(content)) > s.maxAttach {
		return nil, fmt.Errorf("read %s: exceeds %d bytes", a.Name, s.maxAttach)
	}
	return content, nil
}

// ReferenceID identifies one property notification within a batch.
func ReferenceID(batchID string, roofID int) string {
	return fmt.Sprintf("%s/roof-%d", batchID, roofID)
}

var _ dispatch.Sink = (*Sink)(nil)
