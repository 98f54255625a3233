package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"roofalert/internal/external"
	"roofalert/internal/types"
)

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	BaseURL string
	APIKey  types.SecretString
	Logger  *slog.Logger
}

// HTTPSource fetches the latest analysis for an area from the detection
// service: GET {base}/v1/areas/{area}/analysis/latest.
type HTTPSource struct {
	base    *external.BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  *slog.Logger
}

// NewHTTPSource creates an HTTPSource with the default retry and breaker
// settings.
func NewHTTPSource(httpClient *http.Client, cfg HTTPSourceConfig) *HTTPSource {
	base := external.NewBaseClient(
		httpClient,
		external.BreakerSettings{Name: "analysis-api"},
		external.DefaultRetryPolicy(),
		"roofalert-analysis/1.0",
		external.WithFailureCode(types.ErrCodeUpstreamAnalysis),
	)
	return NewHTTPSourceWithBase(base, cfg)
}

// NewHTTPSourceWithBase creates an HTTPSource on an existing BaseClient.
func NewHTTPSourceWithBase(base *external.BaseClient, cfg HTTPSourceConfig) *HTTPSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Analyze implements Source. A zstd Content-Encoding is decoded here.
func (s *HTTPSource) Analyze(ctx context.Context, areaID string) (*types.AnalysisResult, error) {
	endpoint := fmt.Sprintf("%s/v1/areas/%s/analysis/latest", s.baseURL, url.PathEscape(areaID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create analysis request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd")
	if !s.apiKey.IsZero() {
		req.Header.Set("Authorization", "Bearer "+s.apiKey.Unmask())
	}

	resp, err := s.base.Do(req)
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeUpstreamAnalysis {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "analysis request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.WarnContext(ctx, "analysis service rejected request",
			"area_id", areaID,
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamAnalysis,
			fmt.Sprintf("analysis service returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode, "area_id": areaID})
	}

	result, err := Decode(resp.Body, resp.Header.Get("Content-Encoding") == "zstd")
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "analysis loaded",
		"area_id", result.AreaID,
		"roofs", result.TotalRoofs,
		"damages", len(result.Damages),
	)
	return result, nil
}

var _ Source = (*HTTPSource)(nil)
