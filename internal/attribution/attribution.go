// Package attribution groups damage detections by the roof that owns them and
// builds the per-property view of an analysis result.
package attribution

import (
	"fmt"

	"roofalert/internal/types"
)

// Grouping maps roof ids to their damages. Roof ids are kept in order of first
// appearance and each group keeps input order.
type Grouping struct {
	order   []int
	groups  map[int][]types.DamageDetection
	orphans int
}

// RoofIDs returns every grouped roof id in order of first appearance.
func (g *Grouping) RoofIDs() []int {
	out := make([]int, len(g.order))
	copy(out, g.order)
	return out
}

// Damages returns the damages attributed to roofID.
func (g *Grouping) Damages(roofID int) []types.DamageDetection {
	return g.groups[roofID]
}

// Len returns the number of grouped roofs.
func (g *Grouping) Len() int {
	return len(g.order)
}

// Orphans returns how many damages had no roof and were left out.
func (g *Grouping) Orphans() int {
	return g.orphans
}

// GroupByRoof groups damages by RoofID. Damages without a roof are never
// grouped.
func GroupByRoof(damages []types.DamageDetection) *Grouping {
	g := &Grouping{groups: make(map[int][]types.DamageDetection)}
	for _, d := range damages {
		if d.RoofID == nil {
			g.orphans++
			continue
		}
		id := *d.RoofID
		if _, ok := g.groups[id]; !ok {
			g.order = append(g.order, id)
		}
		g.groups[id] = append(g.groups[id], d)
	}
	return g
}

// DamagedRoofIDs returns the roof ids whose group is non-empty, in grouping
// order.
func DamagedRoofIDs(g *Grouping) []int {
	if g == nil {
		return nil
	}
	ids := make([]int, 0, len(g.order))
	for _, id := range g.order {
		if len(g.groups[id]) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// BuildPropertyView returns a copy of full narrowed to one roof and the given
// damages, with the derived counters recomputed. Batch metadata is copied
// unchanged and full is not modified. A roof id absent from full.Roofs yields
// an ErrCodeNotFoundRoof error.
func BuildPropertyView(full *types.AnalysisResult, roofID int, roofDamages []types.DamageDetection) (*types.AnalysisResult, error) {
	if full == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundRoof, "analysis result is nil", nil)
	}

	roof, ok := full.Roof(roofID)
	if !ok {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundRoof,
			fmt.Sprintf("roof %d not found in analysis %s", roofID, full.AreaID),
			nil,
			map[string]any{"roof_id": roofID, "area_id": full.AreaID},
		)
	}

	damages := make([]types.DamageDetection, len(roofDamages))
	copy(damages, roofDamages)

	view := &types.AnalysisResult{
		AreaID:            full.AreaID,
		Timestamp:         full.Timestamp,
		ProcessingTimeSec: full.ProcessingTimeSec,
		CenterLat:         full.CenterLat,
		CenterLng:         full.CenterLng,
		BoundingBox:       full.BoundingBox,
		ImageWidth:        full.ImageWidth,
		ImageHeight:       full.ImageHeight,
		TilesProcessed:    full.TilesProcessed,
		Roofs:             []types.RoofDetection{roof},
		Damages:           damages,
		Performance:       copyPerformance(full.Performance),
	}

	view.TotalRoofs = 1
	if len(damages) > 0 {
		view.RoofsWithDamage = 1
	}
	view.TotalDamageAreaPixels = types.DamageAreaPixels(damages)
	view.DamageSummary = types.SummarizeSeverities(damages)
	return view, nil
}

func copyPerformance(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
