// Package measure converts detector pixel areas into real-world units.
//
// Conversions depend on the imagery zoom level. The defaults assume zoom 21
// satellite tiles, where one pixel covers roughly a quarter foot per side.
package measure

import (
	"math"

	"github.com/golang/geo/r2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// DefaultPixelToSqFt is the area of one pixel in square feet at zoom 21.
	DefaultPixelToSqFt = 0.0625

	// SqFtToSqM converts square feet to square metres.
	SqFtToSqM = 0.092903
)

// Calibration holds the conversion factors for one imagery source.
type Calibration struct {
	PixelToArea float64 // square feet per pixel
	SqFtToSqM   float64 // square metres per square foot
}

// DefaultCalibration is used by the package-level helpers.
var DefaultCalibration = Calibration{
	PixelToArea: DefaultPixelToSqFt,
	SqFtToSqM:   SqFtToSqM,
}

// NewCalibration returns a Calibration for the given pixel factor. A
// non-positive factor selects the default.
func NewCalibration(pixelToSqFt float64) Calibration {
	c := DefaultCalibration
	if pixelToSqFt > 0 {
		c.PixelToArea = pixelToSqFt
	}
	return c
}

// PixelsToArea converts a pixel count to square feet.
func (c Calibration) PixelsToArea(pixels int) float64 {
	return float64(pixels) * c.PixelToArea
}

// AreaToMetric converts square feet to square metres.
func (c Calibration) AreaToMetric(sqft float64) float64 {
	return sqft * c.SqFtToSqM
}

// RoofArea returns a roof's area in square feet.
func (c Calibration) RoofArea(roofPixels int) float64 {
	return c.PixelsToArea(roofPixels)
}

// PixelsToArea converts pixels to square feet with DefaultCalibration.
func PixelsToArea(pixels int) float64 {
	return DefaultCalibration.PixelsToArea(pixels)
}

// AreaToMetric converts square feet to square metres with DefaultCalibration.
func AreaToMetric(sqft float64) float64 {
	return DefaultCalibration.AreaToMetric(sqft)
}

// RoofArea returns a roof's area in square feet with DefaultCalibration.
func RoofArea(roofPixels int) float64 {
	return DefaultCalibration.RoofArea(roofPixels)
}

// DamagePercentage returns damage area as a percentage of roof area.
// A zero-area roof yields 0.
func DamagePercentage(damagePixels, roofPixels int) float64 {
	if roofPixels == 0 {
		return 0
	}
	return float64(damagePixels) / float64(roofPixels) * 100
}

// PolygonArea returns the area enclosed by vertices using the shoelace
// formula. Fewer than three vertices enclose nothing. The result does not
// depend on winding direction.
func PolygonArea(vertices []r2.Point) float64 {
	n := len(vertices)
	if n < 3 {
		return 0
	}

	var twice float64
	for i := range vertices {
		twice += vertices[i].Cross(vertices[(i+1)%n])
	}
	return math.Abs(twice) / 2
}

// Bounds returns the smallest rectangle containing vertices.
func Bounds(vertices []r2.Point) r2.Rect {
	return r2.RectFromPoints(vertices...)
}

var printer = message.NewPrinter(language.English)

// FormatArea renders square feet for display, e.g. "1,234.56 sq ft".
func FormatArea(sqft float64) string {
	return printer.Sprintf("%.2f sq ft", sqft)
}
