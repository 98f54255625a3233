package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"roofalert/internal/types"
)

// FileRegistry looks up artifacts in a local output directory.
type FileRegistry struct {
	dir    string
	logger *slog.Logger
}

// NewFileRegistry creates a registry rooted at dir.
func NewFileRegistry(dir string, logger *slog.Logger) *FileRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRegistry{dir: dir, logger: logger}
}

// Lookup implements Registry.
func (r *FileRegistry) Lookup(ctx context.Context, areaID string) (Set, error) {
	if err := validateAreaID(areaID); err != nil {
		return Set{}, err
	}
	set, err := lookupKinds(ctx, func(ctx context.Context, k Kind) (*Artifact, error) {
		return r.find(ctx, k, areaID)
	})
	if err != nil {
		return Set{}, err
	}
	r.logger.DebugContext(ctx, "artifact lookup complete",
		"area_id", areaID,
		"dir", r.dir,
		"found", len(set.All()),
	)
	return set, nil
}

func (r *FileRegistry) find(ctx context.Context, k Kind, areaID string) (*Artifact, error) {
	var candidates []Artifact
	for _, pattern := range Patterns(k, areaID) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := filepath.Glob(filepath.Join(r.dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			candidates = append(candidates, Artifact{
				Kind:     k,
				Location: m,
				Name:     filepath.Base(m),
				ModTime:  info.ModTime(),
				Size:     info.Size(),
			})
		}
	}
	return newest(candidates), nil
}

// Open implements Registry.
func (r *FileRegistry) Open(_ context.Context, a Artifact) (io.ReadCloser, error) {
	f, err := os.Open(a.Location)
	if err != nil {
		code := types.ErrCodeUpstreamStorage
		if os.IsNotExist(err) {
			code = types.ErrCodeNotFoundArtifact
		}
		return nil, types.NewAppError(code, fmt.Sprintf("failed to open artifact %s", a.Name), err)
	}
	return f, nil
}
