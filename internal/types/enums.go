package types

// DamageType is the category assigned to a damage region by the detector.
// Values outside the declared set are kept verbatim and priced with the
// fallback rate.
type DamageType string

const (
	DamageHail           DamageType = "hail_damage"
	DamageMissingShingle DamageType = "missing_shingles"
	DamageCracks         DamageType = "cracks"
	DamageBlisters       DamageType = "blisters"
	DamagePonding        DamageType = "ponding"
	DamageWarping        DamageType = "warping"
	DamageFlashing       DamageType = "flashing_damage"
	DamageSoftSpots      DamageType = "soft_spots"
	DamageMembrane       DamageType = "membrane_damage"
	DamageUnknown        DamageType = "unknown"
)

// AllDamageTypes lists every declared DamageType in detector order.
var AllDamageTypes = []DamageType{
	DamageHail,
	DamageMissingShingle,
	DamageCracks,
	DamageBlisters,
	DamagePonding,
	DamageWarping,
	DamageFlashing,
	DamageSoftSpots,
	DamageMembrane,
	DamageUnknown,
}

// Known reports whether t is one of the declared damage types.
func (t DamageType) Known() bool {
	for _, k := range AllDamageTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Severity is the detector's severity tier for a damage region.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists severities from most to least severe, the order used
// when presenting severity counts.
var AllSeverities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
}

// Rank orders severities: low=1 < medium=2 < high=3 < critical=4.
// Unrecognized values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Known reports whether s is one of the declared severities.
func (s Severity) Known() bool {
	return s.Rank() > 0
}

// DeliveryStatus records what happened to one property's notification.
type DeliveryStatus string

const (
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusSkipped DeliveryStatus = "skipped"
)

// BatchStatus is the lifecycle state of one dispatch batch.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
)
