package analysis

import (
	"context"
	"log/slog"

	"roofalert/internal/artifacts"
	"roofalert/internal/types"
)

// ArtifactSource loads the most recent result artifact written for an area.
type ArtifactSource struct {
	registry artifacts.Registry
	logger   *slog.Logger
}

// NewArtifactSource creates an ArtifactSource over registry.
func NewArtifactSource(registry artifacts.Registry, logger *slog.Logger) *ArtifactSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactSource{registry: registry, logger: logger}
}

// Analyze implements Source.
func (s *ArtifactSource) Analyze(ctx context.Context, areaID string) (*types.AnalysisResult, error) {
	set, err := s.registry.Lookup(ctx, areaID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "failed to look up analysis artifacts", err)
	}
	if set.Result == nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamAnalysis,
			"no analysis result found", nil, map[string]any{"area_id": areaID})
	}

	rc, err := s.registry.Open(ctx, *set.Result)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "failed to open analysis result", err)
	}
	defer rc.Close()

	result, err := Decode(rc, set.Result.Compressed())
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "analysis loaded from artifact",
		"area_id", areaID,
		"artifact", set.Result.Name,
		"roofs", result.TotalRoofs,
		"damages", len(result.Damages),
	)
	return result, nil
}

var _ Source = (*ArtifactSource)(nil)
