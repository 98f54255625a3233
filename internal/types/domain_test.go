package types

import "testing"

func intPtr(v int) *int { return &v }

func TestRecount(t *testing.T) {
	r := &AnalysisResult{
		AreaID: "75201",
		Roofs: []RoofDetection{
			{ID: 1, AreaPixels: 4000},
			{ID: 2, AreaPixels: 3000},
		},
		Damages: []DamageDetection{
			{Type: DamageHail, Severity: SeverityHigh, AreaPixels: 500, RoofID: intPtr(1)},
			{Type: DamageCracks, Severity: SeverityLow, AreaPixels: 200, RoofID: intPtr(1)},
			{Type: DamagePonding, Severity: SeverityMedium, AreaPixels: 100, RoofID: nil},
			{Type: DamageWarping, Severity: SeverityCritical, AreaPixels: 50, RoofID: intPtr(9)},
		},
	}

	r.Recount()

	if r.TotalRoofs != 2 {
		t.Errorf("TotalRoofs = %d, want 2", r.TotalRoofs)
	}
	// Roof 9 is not in Roofs and the orphan has no roof.
	if r.RoofsWithDamage != 1 {
		t.Errorf("RoofsWithDamage = %d, want 1", r.RoofsWithDamage)
	}
	if r.TotalDamageAreaPixels != 850 {
		t.Errorf("TotalDamageAreaPixels = %d, want 850", r.TotalDamageAreaPixels)
	}
	want := map[Severity]int{SeverityLow: 1, SeverityMedium: 1, SeverityHigh: 1, SeverityCritical: 1}
	for s, n := range want {
		if r.DamageSummary[s] != n {
			t.Errorf("DamageSummary[%s] = %d, want %d", s, r.DamageSummary[s], n)
		}
	}
}

func TestRecountEmpty(t *testing.T) {
	r := &AnalysisResult{AreaID: "00000"}
	r.Recount()

	if r.TotalRoofs != 0 || r.RoofsWithDamage != 0 || r.TotalDamageAreaPixels != 0 {
		t.Errorf("counters not zero: %+v", r)
	}
	if len(r.DamageSummary) != len(AllSeverities) {
		t.Errorf("DamageSummary should list every severity, got %v", r.DamageSummary)
	}
}

func TestRoofLookup(t *testing.T) {
	r := &AnalysisResult{Roofs: []RoofDetection{{ID: 3, Confidence: 0.9}}}

	roof, ok := r.Roof(3)
	if !ok || roof.Confidence != 0.9 {
		t.Errorf("Roof(3) = %+v, %v", roof, ok)
	}
	if _, ok := r.Roof(4); ok {
		t.Error("Roof(4) should not be found")
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityLow.Rank() < SeverityMedium.Rank() &&
		SeverityMedium.Rank() < SeverityHigh.Rank() &&
		SeverityHigh.Rank() < SeverityCritical.Rank()) {
		t.Error("severity ranks are not strictly ordered")
	}
	if Severity("extreme").Known() {
		t.Error("unrecognized severity should not be known")
	}
}

func TestDamageTypeKnown(t *testing.T) {
	for _, dt := range AllDamageTypes {
		if !dt.Known() {
			t.Errorf("%s should be known", dt)
		}
	}
	if DamageType("algae").Known() {
		t.Error("algae should not be a known damage type")
	}
}
