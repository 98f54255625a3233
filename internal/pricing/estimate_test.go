package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofalert/internal/measure"
	"roofalert/internal/types"
)

func roofID(v int) *int { return &v }

func damage(dt types.DamageType, sev types.Severity, px int) types.DamageDetection {
	return types.DamageDetection{Type: dt, Severity: sev, AreaPixels: px, Confidence: 0.9, RoofID: roofID(1)}
}

func TestEstimateEmpty(t *testing.T) {
	for _, in := range [][]types.DamageDetection{nil, {}} {
		est := EstimateCost(in)

		assert.Zero(t, est.Total)
		assert.Zero(t, est.Labor)
		assert.Zero(t, est.Material)
		assert.Zero(t, est.AreaSqFt)
		assert.Zero(t, est.CostPerSqFt)
		assert.False(t, est.FloorApplied)
		require.NotNil(t, est.Breakdown)
		assert.Empty(t, est.Breakdown)
	}
}

func TestEstimateSingleHailHigh(t *testing.T) {
	// 8.50 * 1.5 * (1000 * 0.0625) = 796.875
	est := EstimateCost([]types.DamageDetection{damage(types.DamageHail, types.SeverityHigh, 1000)})

	assert.Equal(t, 796.88, est.Total)
	assert.Equal(t, 446.25, est.Labor)
	assert.Equal(t, 350.63, est.Material)
	assert.Equal(t, 62.5, est.AreaSqFt)
	assert.Equal(t, 12.75, est.CostPerSqFt)
	assert.Equal(t, map[types.DamageType]float64{types.DamageHail: 796.88}, est.Breakdown)
	assert.False(t, est.FloorApplied)
}

func TestEstimateMinimumChargeFloor(t *testing.T) {
	// 8.00 * 1.0 * (100 * 0.0625) = 50
	est := EstimateCost([]types.DamageDetection{damage(types.DamageUnknown, types.SeverityLow, 100)})

	assert.Equal(t, 500.0, est.Total)
	assert.True(t, est.FloorApplied)
	assert.Equal(t, 80.0, est.CostPerSqFt)
	assert.Equal(t, 50.0, est.Breakdown[types.DamageUnknown], "breakdown keeps the pre-floor subtotal")
}

func TestFloorSplitUsesBlendedShare(t *testing.T) {
	// The split is taken from the post-floor total, not from the per-type costs.
	est := EstimateCost([]types.DamageDetection{damage(types.DamageSoftSpots, types.SeverityLow, 100)})

	require.True(t, est.FloorApplied)
	assert.Equal(t, 280.0, est.Labor)
	assert.Equal(t, 220.0, est.Material)
	assert.Equal(t, est.Total, est.Labor+est.Material)
}

func TestFloorAppliedOncePerEstimate(t *testing.T) {
	// Two items of 50 each sum to 100, floored once to 500 rather than 1000.
	est := EstimateCost([]types.DamageDetection{
		damage(types.DamageUnknown, types.SeverityLow, 100),
		damage(types.DamageUnknown, types.SeverityLow, 100),
	})

	assert.Equal(t, 500.0, est.Total)
	assert.Equal(t, 100.0, est.Breakdown[types.DamageUnknown])
}

func TestEstimateUnknownCategoryAndSeverity(t *testing.T) {
	// 10000 px = 625 sq ft; fallback rate 8.00, unrecognized severity 1.0.
	est := EstimateCost([]types.DamageDetection{damage("algae", "extreme", 10000)})

	assert.Equal(t, 5000.0, est.Total)
	assert.Equal(t, 5000.0, est.Breakdown["algae"])
}

func TestEstimateBreakdownOrderAndSums(t *testing.T) {
	est := EstimateCost([]types.DamageDetection{
		damage(types.DamagePonding, types.SeverityMedium, 2000), // 12 * 1.2 * 125 = 1800
		damage(types.DamageCracks, types.SeverityCritical, 800), // 7.5 * 2 * 50 = 750
		damage(types.DamagePonding, types.SeverityLow, 400),     // 12 * 1 * 25 = 300
		damage(types.DamageFlashing, types.SeverityHigh, 160),   // 15 * 1.5 * 10 = 225
	})

	require.Len(t, est.Lines, 3)
	assert.Equal(t, types.DamagePonding, est.Lines[0].Type)
	assert.Equal(t, types.DamageCracks, est.Lines[1].Type)
	assert.Equal(t, types.DamageFlashing, est.Lines[2].Type)

	assert.Equal(t, 2100.0, est.Breakdown[types.DamagePonding])
	assert.Equal(t, 750.0, est.Breakdown[types.DamageCracks])
	assert.Equal(t, 225.0, est.Breakdown[types.DamageFlashing])
	assert.Equal(t, 3075.0, est.Total)
	assert.Equal(t, 210.0, est.AreaSqFt)
	assert.Equal(t, 14.64, est.CostPerSqFt)
	assert.Equal(t, 1722.0, est.Labor)
	assert.Equal(t, 1353.0, est.Material)
}

func TestLaborPlusMaterialEqualsTotal(t *testing.T) {
	severities := types.AllSeverities
	for i, dt := range types.AllDamageTypes {
		for j, sev := range severities {
			px := 137*(i+1) + 911*(j+1)
			est := EstimateCost([]types.DamageDetection{damage(dt, sev, px)})
			assert.InDelta(t, est.Total, est.Labor+est.Material, 1e-9, "%s/%s", dt, sev)
			assert.GreaterOrEqual(t, est.Total, 500.0)
			assert.GreaterOrEqual(t, est.Material, 0.0)
		}
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	in := []types.DamageDetection{
		damage(types.DamageBlisters, types.SeverityHigh, 3333),
		damage(types.DamageWarping, types.SeverityMedium, 1234),
	}
	assert.Equal(t, EstimateCost(in), EstimateCost(in))
}

func TestBlendedLaborShare(t *testing.T) {
	assert.InDelta(t, 0.56, NewEstimator().LaborShare(), 1e-12)
}

func TestEstimatorOptions(t *testing.T) {
	e := NewEstimator(WithMinimumCharge(0), WithCalibration(measure.NewCalibration(0.25)))

	// 8.00 * 1.0 * (100 * 0.25) = 200, no floor.
	est := e.Estimate([]types.DamageDetection{damage(types.DamageUnknown, types.SeverityLow, 100)})
	assert.Equal(t, 200.0, est.Total)
	assert.False(t, est.FloorApplied)
	assert.Equal(t, 25.0, est.AreaSqFt)
}

func TestEstimateResult(t *testing.T) {
	r := &types.AnalysisResult{
		AreaID: "75201",
		Damages: []types.DamageDetection{
			damage(types.DamageHail, types.SeverityHigh, 1000),
			{Type: types.DamageHail, Severity: types.SeverityHigh, AreaPixels: 1000},
		},
	}

	est := EstimateResult(r)
	assert.Equal(t, 1593.75, est.Total)
	assert.Zero(t, EstimateResult(nil).Total)
}
