package types

import "time"

// RoofDetection is one roof outline found in the analysed imagery.
type RoofDetection struct {
	ID         int        `json:"roof_id" validate:"gte=0"`
	Confidence float64    `json:"confidence" validate:"gte=0,lte=1"`
	AreaPixels int        `json:"area_pixels" validate:"gte=0"`
	Center     [2]float64 `json:"center"`
	BBox       [4]float64 `json:"bbox,omitempty"`
}

// DamageDetection is one damage region. RoofID is nil when the detector could
// not attribute the region to any roof.
type DamageDetection struct {
	Type       DamageType `json:"damage_type" validate:"required"`
	Severity   Severity   `json:"severity" validate:"required"`
	Confidence float64    `json:"confidence" validate:"gte=0,lte=1"`
	AreaPixels int        `json:"area_pixels" validate:"gte=0"`
	RoofID     *int       `json:"roof_id"`
	Center     [2]float64 `json:"center,omitempty"`
}

// Attributed reports whether the damage belongs to a roof.
func (d DamageDetection) Attributed() bool {
	return d.RoofID != nil
}

// BoundingBox is the geographic extent of an analysed area.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// AnalysisResult is the output of one completed analysis over an area.
type AnalysisResult struct {
	AreaID            string      `json:"zipcode" validate:"required"`
	Timestamp         time.Time   `json:"timestamp"`
	ProcessingTimeSec float64     `json:"processing_time_seconds"`
	CenterLat         float64     `json:"center_lat"`
	CenterLng         float64     `json:"center_lng"`
	BoundingBox       BoundingBox `json:"bounding_box"`
	ImageWidth        int         `json:"image_width"`
	ImageHeight       int         `json:"image_height"`
	TilesProcessed    int         `json:"tiles_processed"`

	Roofs   []RoofDetection   `json:"roofs" validate:"dive"`
	Damages []DamageDetection `json:"damages" validate:"dive"`

	TotalRoofs            int              `json:"total_roofs"`
	RoofsWithDamage       int              `json:"roofs_with_damage"`
	TotalDamageAreaPixels int              `json:"total_damage_area_pixels"`
	DamageSummary         map[Severity]int `json:"damage_summary"`

	Performance map[string]float64 `json:"performance_metrics,omitempty"`
}

// Roof returns the roof with the given id.
func (r *AnalysisResult) Roof(id int) (RoofDetection, bool) {
	for _, roof := range r.Roofs {
		if roof.ID == id {
			return roof, true
		}
	}
	return RoofDetection{}, false
}

// Recount recomputes the derived counters from Roofs and Damages.
// RoofsWithDamage counts distinct attributed roof ids present in Roofs.
func (r *AnalysisResult) Recount() {
	r.TotalRoofs = len(r.Roofs)

	known := make(map[int]struct{}, len(r.Roofs))
	for _, roof := range r.Roofs {
		known[roof.ID] = struct{}{}
	}

	damaged := make(map[int]struct{})
	total := 0
	for _, d := range r.Damages {
		total += d.AreaPixels
		if d.RoofID == nil {
			continue
		}
		if _, ok := known[*d.RoofID]; ok {
			damaged[*d.RoofID] = struct{}{}
		}
	}
	r.RoofsWithDamage = len(damaged)
	r.TotalDamageAreaPixels = total
	r.DamageSummary = SummarizeSeverities(r.Damages)
}

// SummarizeSeverities counts damages per severity. Every declared severity is
// present in the result, including those with a zero count.
func SummarizeSeverities(damages []DamageDetection) map[Severity]int {
	summary := make(map[Severity]int, len(AllSeverities))
	for _, s := range AllSeverities {
		summary[s] = 0
	}
	for _, d := range damages {
		summary[d.Severity]++
	}
	return summary
}

// DamageAreaPixels sums AreaPixels over damages.
func DamageAreaPixels(damages []DamageDetection) int {
	total := 0
	for _, d := range damages {
		total += d.AreaPixels
	}
	return total
}

// SendInput is a fully rendered email ready for a provider.
type SendInput struct {
	To          string
	From        SenderIdentity
	Subject     string
	BodyHTML    string
	BodyText    string
	Attachments []Attachment
	ReferenceID string
}

// SenderIdentity is the From address of outgoing email.
type SenderIdentity struct {
	Name    string
	Address string
}

// Attachment is a file sent with an email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}
