package pricing

import (
	"github.com/shopspring/decimal"

	"roofalert/internal/types"
)

// Table is the static pricing data used by an Estimator.
type Table struct {
	// BaseRates is the repair cost per square foot by damage type.
	BaseRates map[types.DamageType]decimal.Decimal
	// FallbackRate prices damage types missing from BaseRates.
	FallbackRate decimal.Decimal
	// SeverityMultipliers scale the base rate. Missing severities use 1.
	SeverityMultipliers map[types.Severity]decimal.Decimal
	// LaborShares is the labor fraction of cost by damage type. Only the
	// unweighted mean of these values is used.
	LaborShares map[types.DamageType]decimal.Decimal
	// MinimumCharge is the lowest total billed for a non-empty estimate.
	MinimumCharge decimal.Decimal
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultTable returns the standard residential pricing table.
func DefaultTable() Table {
	return Table{
		BaseRates: map[types.DamageType]decimal.Decimal{
			types.DamageHail:           d("8.50"),
			types.DamageMissingShingle: d("6.00"),
			types.DamageCracks:         d("7.50"),
			types.DamageBlisters:       d("9.00"),
			types.DamagePonding:        d("12.00"),
			types.DamageWarping:        d("10.00"),
			types.DamageFlashing:       d("15.00"),
			types.DamageSoftSpots:      d("18.00"),
			types.DamageMembrane:       d("14.00"),
			types.DamageUnknown:        d("8.00"),
		},
		FallbackRate: d("8.00"),
		SeverityMultipliers: map[types.Severity]decimal.Decimal{
			types.SeverityLow:      d("1.0"),
			types.SeverityMedium:   d("1.2"),
			types.SeverityHigh:     d("1.5"),
			types.SeverityCritical: d("2.0"),
		},
		LaborShares: map[types.DamageType]decimal.Decimal{
			types.DamageHail:           d("0.50"),
			types.DamageMissingShingle: d("0.45"),
			types.DamageCracks:         d("0.50"),
			types.DamageBlisters:       d("0.55"),
			types.DamagePonding:        d("0.60"),
			types.DamageWarping:        d("0.55"),
			types.DamageFlashing:       d("0.65"),
			types.DamageSoftSpots:      d("0.70"),
			types.DamageMembrane:       d("0.60"),
			types.DamageUnknown:        d("0.50"),
		},
		MinimumCharge: d("500.00"),
	}
}

// Rate returns the base rate for t.
func (t Table) Rate(dt types.DamageType) decimal.Decimal {
	if r, ok := t.BaseRates[dt]; ok {
		return r
	}
	return t.FallbackRate
}

// Multiplier returns the severity multiplier for s.
func (t Table) Multiplier(s types.Severity) decimal.Decimal {
	if m, ok := t.SeverityMultipliers[s]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// BlendedLaborShare is the arithmetic mean of LaborShares.
func (t Table) BlendedLaborShare() decimal.Decimal {
	if len(t.LaborShares) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range t.LaborShares {
		sum = sum.Add(s)
	}
	return sum.Div(decimal.NewFromInt(int64(len(t.LaborShares))))
}
