// Package analysis loads completed damage analyses. A Source returns the
// latest validated result for an area, either from the detection service or
// from the result artifacts it leaves behind.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"roofalert/internal/types"
)

// MaxResultBytes bounds a decoded analysis result.
const MaxResultBytes = 64 << 20

// Source produces the analysis result for one area.
type Source interface {
	Analyze(ctx context.Context, areaID string) (*types.AnalysisResult, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, areaID string) (*types.AnalysisResult, error)

// Analyze implements Source.
func (f SourceFunc) Analyze(ctx context.Context, areaID string) (*types.AnalysisResult, error) {
	return f(ctx, areaID)
}

// decoderPool provides reusable zstd decoders.
var decoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(MaxResultBytes))
		if err != nil {
			// Only fails on invalid options.
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return d
	},
}

// Decode reads a JSON analysis result, zstd-compressed when compressed is
// set. The result is validated and its derived counters are recomputed.
// Every failure is reported as ErrCodeUpstreamAnalysis.
func Decode(r io.Reader, compressed bool) (*types.AnalysisResult, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxResultBytes+1))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "failed to read analysis result", err)
	}
	if len(raw) > MaxResultBytes {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis,
			fmt.Sprintf("analysis result exceeds %d bytes", MaxResultBytes), nil)
	}

	if compressed {
		raw, err = decompress(raw)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "failed to decompress analysis result", err)
		}
	}

	var result types.AnalysisResult
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&result); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "malformed analysis result", err)
	}

	if err := types.ValidateAnalysisResult(&result); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "analysis result failed validation", err)
	}
	result.Recount()
	return &result, nil
}

func decompress(data []byte) ([]byte, error) {
	decoder := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(decoder)

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}
