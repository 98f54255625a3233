// Package artifacts locates the files produced alongside an analysis run:
// the annotated detection image, the damage heatmap and the JSON result.
//
// Files are named "{area}_{timestamp}_annotated.png",
// "{area}_{timestamp}_heatmap.png" and "{area}_{timestamp}.json" (optionally
// zstd-compressed as ".json.zst"). When several runs exist for an area the
// most recently modified file of each kind wins.
package artifacts

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"roofalert/internal/types"
)

// Kind identifies one of the artifact types produced per run.
type Kind string

const (
	KindAnnotated Kind = "annotated"
	KindHeatmap   Kind = "heatmap"
	KindResult    Kind = "result"
)

// Kinds lists every artifact kind in attachment order.
var Kinds = []Kind{KindAnnotated, KindHeatmap, KindResult}

// Attachment names used when artifacts are sent to recipients.
const (
	AnnotatedAttachmentName = "annotated_detection.png"
	HeatmapAttachmentName   = "damage_heatmap.png"
)

// Artifact is one located file.
type Artifact struct {
	Kind     Kind
	Location string // filesystem path or object key
	Name     string // base name
	ModTime  time.Time
	Size     int64
}

// AttachmentName is the file name shown to recipients.
func (a Artifact) AttachmentName() string {
	switch a.Kind {
	case KindAnnotated:
		return AnnotatedAttachmentName
	case KindHeatmap:
		return HeatmapAttachmentName
	default:
		return a.Name
	}
}

// ContentType returns the MIME type for the artifact.
func (a Artifact) ContentType() string {
	switch {
	case strings.HasSuffix(a.Name, ".png"):
		return "image/png"
	case strings.HasSuffix(a.Name, ".zst"):
		return "application/zstd"
	default:
		return "application/json"
	}
}

// Compressed reports whether the artifact is zstd-compressed.
func (a Artifact) Compressed() bool {
	return strings.HasSuffix(a.Name, ".zst")
}

// Set holds the latest artifact of each kind for one area. Missing kinds are
// nil.
type Set struct {
	Annotated *Artifact
	Heatmap   *Artifact
	Result    *Artifact
}

// Get returns the artifact of kind k.
func (s Set) Get(k Kind) *Artifact {
	switch k {
	case KindAnnotated:
		return s.Annotated
	case KindHeatmap:
		return s.Heatmap
	case KindResult:
		return s.Result
	}
	return nil
}

func (s *Set) put(a *Artifact) {
	if a == nil {
		return
	}
	switch a.Kind {
	case KindAnnotated:
		s.Annotated = a
	case KindHeatmap:
		s.Heatmap = a
	case KindResult:
		s.Result = a
	}
}

// All returns the present artifacts in attachment order.
func (s Set) All() []Artifact {
	var out []Artifact
	for _, k := range Kinds {
		if a := s.Get(k); a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// Empty reports whether no artifact was found.
func (s Set) Empty() bool {
	return s.Annotated == nil && s.Heatmap == nil && s.Result == nil
}

// Registry finds and opens artifacts.
type Registry interface {
	// Lookup returns the most recent artifact of each kind for areaID.
	Lookup(ctx context.Context, areaID string) (Set, error)
	// Open returns the artifact's contents.
	Open(ctx context.Context, a Artifact) (io.ReadCloser, error)
}

// Patterns returns the base-name glob patterns for kind k and areaID.
func Patterns(k Kind, areaID string) []string {
	switch k {
	case KindAnnotated:
		return []string{areaID + "_*_annotated.png"}
	case KindHeatmap:
		return []string{areaID + "_*_heatmap.png"}
	case KindResult:
		return []string{areaID + "_*.json", areaID + "_*.json.zst"}
	}
	return nil
}

// Matches reports whether the base name belongs to kind k for areaID.
func Matches(k Kind, areaID, name string) bool {
	for _, p := range Patterns(k, areaID) {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// validateAreaID rejects ids that would escape the artifact directory or
// alter the glob.
func validateAreaID(areaID string) error {
	if areaID == "" || strings.ContainsAny(areaID, `/\*?[]`) || strings.Contains(areaID, "..") {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPayload,
			"invalid area id for artifact lookup", nil, map[string]any{"area_id": areaID})
	}
	return nil
}

// newest picks the most recently modified candidate; ties keep the
// lexically greatest name so results are stable.
func newest(candidates []Artifact) *Artifact {
	var best *Artifact
	for i := range candidates {
		c := &candidates[i]
		if best == nil || c.ModTime.After(best.ModTime) ||
			(c.ModTime.Equal(best.ModTime) && c.Name > best.Name) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

type findFunc func(ctx context.Context, k Kind) (*Artifact, error)

// lookupKinds runs find for every kind concurrently.
func lookupKinds(ctx context.Context, find findFunc) (Set, error) {
	results := make([]*Artifact, len(Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range Kinds {
		g.Go(func() error {
			a, err := find(gctx, k)
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Set{}, err
	}

	var set Set
	for _, a := range results {
		set.put(a)
	}
	return set, nil
}
