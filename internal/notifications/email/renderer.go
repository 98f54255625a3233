package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"roofalert/internal/dispatch"
	"roofalert/internal/measure"
	"roofalert/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

const reportTemplate = "damage_report"

// SubjectPrefix starts every report subject; the area id follows.
const SubjectPrefix = "Roof Damage Report - Zipcode "

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the struct passed into Go templates for rendering. Numbers
// are preformatted so both bodies show identical values.
type templateData struct {
	Subject         string
	AreaID          string
	TotalRoofs      int
	RoofsWithDamage int
	TotalDamages    int
	DamageAreaSqFt  string
	TotalCost       string
	LaborCost       string
	MaterialCost    string
	CostPerSqFt     string
	FloorApplied    bool
	Breakdown       []breakdownRow
	Severities      []severityCard
	Roof            *roofDetails
	GeneratedAt     string
}

type breakdownRow struct {
	Name string
	Cost string
}

type severityCard struct {
	Label string
	Class string
	Count int
}

type roofDetails struct {
	ID          int
	Confidence  string
	AreaPixels  string
	AreaSqFt    string
	AreaSqM     string
	DamageShare string
	CenterX     string
	CenterY     string
}

// Renderer renders damage reports from the embedded templates.
type Renderer struct {
	html *template.Template
	text *texttemplate.Template

	defaultFromAddr string
	defaultFromName string
	calibration     measure.Calibration
	now             func() time.Time
	logger          *slog.Logger
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	DefaultFromAddr string
	DefaultFromName string
	// Calibration converts roof pixel areas for the roof details block. The
	// zero value selects measure.DefaultCalibration.
	Calibration measure.Calibration
	Logger      *slog.Logger
	// Now overrides the clock used for the report timestamp.
	Now func() time.Time
}

// NewRenderer parses the embedded templates and returns a Renderer.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		defaultFromAddr: cfg.DefaultFromAddr,
		defaultFromName: cfg.DefaultFromName,
		calibration:     cfg.Calibration,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.calibration == (measure.Calibration{}) {
		r.calibration = measure.DefaultCalibration
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	htmlContent, err := templateFS.ReadFile("templates/" + reportTemplate + ".html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read %s.html: %w", reportTemplate, err)
	}
	r.html, err = template.New(reportTemplate).Parse(string(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse %s.html: %w", reportTemplate, err)
	}

	txtContent, err := templateFS.ReadFile("templates/" + reportTemplate + ".txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", reportTemplate, err)
	}
	r.text, err = texttemplate.New(reportTemplate).Parse(string(txtContent))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", reportTemplate, err)
	}

	return r, nil
}

// Render renders the report for one notice and returns the sender identity.
func (r *Renderer) Render(n dispatch.Notice) (*RenderedEmail, types.SenderIdentity, error) {
	if n.View == nil {
		return nil, types.SenderIdentity{}, fmt.Errorf("renderer: notice for roof %d has no view", n.RoofID)
	}

	data := r.buildTemplateData(n)

	var htmlBuf bytes.Buffer
	if err := r.html.Execute(&htmlBuf, data); err != nil {
		return nil, types.SenderIdentity{}, fmt.Errorf("renderer: failed to render HTML: %w", err)
	}

	var txtBuf bytes.Buffer
	if err := r.text.Execute(&txtBuf, data); err != nil {
		return nil, types.SenderIdentity{}, fmt.Errorf("renderer: failed to render text: %w", err)
	}

	sender := types.SenderIdentity{
		Address: r.defaultFromAddr,
		Name:    r.defaultFromName,
	}

	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, sender, nil
}

func (r *Renderer) buildTemplateData(n dispatch.Notice) templateData {
	view := n.View
	est := n.Estimate

	areaID := n.AreaID
	if areaID == "" {
		areaID = view.AreaID
	}

	data := templateData{
		Subject:         Subject(areaID),
		AreaID:          areaID,
		TotalRoofs:      view.TotalRoofs,
		RoofsWithDamage: view.RoofsWithDamage,
		TotalDamages:    len(view.Damages),
		DamageAreaSqFt:  measure.FormatArea(est.AreaSqFt),
		TotalCost:       formatMoney(est.Total),
		LaborCost:       formatMoney(est.Labor),
		MaterialCost:    formatMoney(est.Material),
		CostPerSqFt:     fmt.Sprintf("%.2f", est.CostPerSqFt),
		FloorApplied:    est.FloorApplied,
		GeneratedAt:     r.now().UTC().Format("January 2, 2006 15:04 MST"),
	}

	for _, line := range est.Lines {
		data.Breakdown = append(data.Breakdown, breakdownRow{
			Name: DamageTypeTitle(line.Type),
			Cost: formatMoney(line.Subtotal),
		})
	}

	for _, s := range types.AllSeverities {
		if c := view.DamageSummary[s]; c > 0 {
			data.Severities = append(data.Severities, severityCard{
				Label: titleCaser.String(string(s)),
				Class: "severity-" + string(s),
				Count: c,
			})
		}
	}

	if len(view.Roofs) > 0 {
		roof := view.Roofs[0]
		sqft := r.calibration.RoofArea(roof.AreaPixels)
		data.Roof = &roofDetails{
			ID:          roof.ID,
			Confidence:  fmt.Sprintf("%.1f%%", roof.Confidence*100),
			AreaPixels:  printer.Sprintf("%d", roof.AreaPixels),
			AreaSqFt:    measure.FormatArea(sqft),
			AreaSqM:     printer.Sprintf("%.2f m²", r.calibration.AreaToMetric(sqft)),
			DamageShare: fmt.Sprintf("%.1f%%", measure.DamagePercentage(view.TotalDamageAreaPixels, roof.AreaPixels)),
			CenterX:     fmt.Sprintf("%.1f", roof.Center[0]),
			CenterY:     fmt.Sprintf("%.1f", roof.Center[1]),
		}
	}

	return data
}

var (
	printer    = message.NewPrinter(language.English)
	titleCaser = cases.Title(language.English)
)

// Subject returns the report subject for an area.
func Subject(areaID string) string {
	return SubjectPrefix + areaID
}

// DamageTypeTitle turns "hail_damage" into "Hail Damage".
func DamageTypeTitle(t types.DamageType) string {
	return titleCaser.String(strings.ReplaceAll(string(t), "_", " "))
}

// formatMoney renders an amount with thousands separators and two decimals.
func formatMoney(v float64) string {
	return printer.Sprintf("%.2f", v)
}
