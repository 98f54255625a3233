// Package pricing turns damage detections into repair cost estimates.
package pricing

import (
	"github.com/shopspring/decimal"

	"roofalert/internal/measure"
	"roofalert/internal/types"
)

const places = 2

// LineItem is the subtotal for one damage type.
type LineItem struct {
	Type     types.DamageType `json:"damage_type"`
	Subtotal float64          `json:"subtotal"`
}

// Estimate is a priced repair estimate. Every value is rounded to cents and
// Labor + Material == Total holds exactly.
type Estimate struct {
	Total       float64                      `json:"total_cost"`
	Labor       float64                      `json:"labor_cost"`
	Material    float64                      `json:"material_cost"`
	AreaSqFt    float64                      `json:"damage_area_sqft"`
	CostPerSqFt float64                      `json:"cost_per_sqft"`
	Breakdown   map[types.DamageType]float64 `json:"breakdown_by_type"`
	// Lines holds the breakdown in order of first appearance.
	Lines []LineItem `json:"-"`
	// FloorApplied is set when the minimum charge replaced the summed cost.
	FloorApplied bool `json:"floor_applied"`
}

// Estimator prices damages against a Table.
type Estimator struct {
	table       Table
	calibration measure.Calibration
	laborShare  decimal.Decimal
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithTable replaces the default pricing table.
func WithTable(t Table) Option {
	return func(e *Estimator) { e.table = t }
}

// WithCalibration sets the pixel-to-area conversion.
func WithCalibration(c measure.Calibration) Option {
	return func(e *Estimator) { e.calibration = c }
}

// WithMinimumCharge overrides the table's minimum charge.
func WithMinimumCharge(amount float64) Option {
	return func(e *Estimator) { e.table.MinimumCharge = decimal.NewFromFloat(amount) }
}

// NewEstimator creates an Estimator using the default table and calibration
// unless overridden.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		table:       DefaultTable(),
		calibration: measure.DefaultCalibration,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.laborShare = e.table.BlendedLaborShare()
	return e
}

// LaborShare returns the blended labor fraction applied to totals.
func (e *Estimator) LaborShare() float64 {
	return e.laborShare.InexactFloat64()
}

// Estimate prices damages. An empty input yields a zero estimate with an
// empty breakdown.
//
// The minimum charge is applied once to the summed total, and the labor and
// material split is taken from that post-floor total. When the floor is
// active the split therefore no longer reflects the per-type costs.
func (e *Estimator) Estimate(damages []types.DamageDetection) Estimate {
	est := Estimate{Breakdown: map[types.DamageType]float64{}}
	if len(damages) == 0 {
		return est
	}

	pixelFactor := decimal.NewFromFloat(e.calibration.PixelToArea)
	subtotals := make(map[types.DamageType]decimal.Decimal)
	var order []types.DamageType
	total := decimal.Zero
	pixels := int64(0)

	for _, dmg := range damages {
		area := decimal.NewFromInt(int64(dmg.AreaPixels)).Mul(pixelFactor)
		cost := e.table.Rate(dmg.Type).Mul(e.table.Multiplier(dmg.Severity)).Mul(area)

		if _, seen := subtotals[dmg.Type]; !seen {
			order = append(order, dmg.Type)
			subtotals[dmg.Type] = decimal.Zero
		}
		subtotals[dmg.Type] = subtotals[dmg.Type].Add(cost)
		total = total.Add(cost)
		pixels += int64(dmg.AreaPixels)
	}

	if total.LessThan(e.table.MinimumCharge) {
		total = e.table.MinimumCharge
		est.FloorApplied = true
	}

	area := decimal.NewFromInt(pixels).Mul(pixelFactor)
	roundedTotal := total.Round(places)
	labor := total.Mul(e.laborShare).Round(places)

	est.Total = roundedTotal.InexactFloat64()
	est.Labor = labor.InexactFloat64()
	est.Material = roundedTotal.Sub(labor).InexactFloat64()
	est.AreaSqFt = area.Round(places).InexactFloat64()
	if area.IsPositive() {
		est.CostPerSqFt = total.Div(area).Round(places).InexactFloat64()
	}

	est.Lines = make([]LineItem, 0, len(order))
	for _, dt := range order {
		v := subtotals[dt].Round(places).InexactFloat64()
		est.Breakdown[dt] = v
		est.Lines = append(est.Lines, LineItem{Type: dt, Subtotal: v})
	}
	return est
}

// EstimateResult prices every damage in an analysis result.
func (e *Estimator) EstimateResult(r *types.AnalysisResult) Estimate {
	if r == nil {
		return e.Estimate(nil)
	}
	return e.Estimate(r.Damages)
}

var defaultEstimator = NewEstimator()

// EstimateCost prices damages with the default table.
func EstimateCost(damages []types.DamageDetection) Estimate {
	return defaultEstimator.Estimate(damages)
}

// EstimateResult prices every damage of r with the default table.
func EstimateResult(r *types.AnalysisResult) Estimate {
	return defaultEstimator.EstimateResult(r)
}
