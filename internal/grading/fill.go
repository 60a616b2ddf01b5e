package grading

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/omr-grader/internal/detection"
	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
)

// FillMetrics describes how much ink lies inside one bubble.
type FillMetrics struct {
	// MarkedPixels counts mask pixels inside the bubble outline, boundary
	// included.
	MarkedPixels int `json:"marked_pixels"`

	// Area is the polygon area of the outline.
	Area float64 `json:"area"`

	// FillRatio is MarkedPixels / Area. The outline pixels themselves count
	// as marked, so a solid bubble can exceed 1.
	FillRatio float64 `json:"fill_ratio"`

	// Density is MarkedPixels over the bounding box area.
	Density float64 `json:"density"`
}

// Confidence returns the fill ratio as a 0-100 percentage.
func (m FillMetrics) Confidence() float64 {
	return math.Min(100, m.FillRatio*100)
}

// MeasureFill counts the ink inside region r.
//
// Parameters:
//   - r: A bubble region traced from mask.
//   - mask: The binarized sheet, ink = 255.
//
// Returns the pixel count and the two ratios derived from it.
//
// # Algorithm
//
// The outline is rasterized with the even-odd rule, one scanline per row of
// the bounding box; crossings are taken at pixel centres. The outline
// pixels are added so a bubble traced on a one-pixel stroke still covers
// its own boundary. Every covered pixel that is set in mask is counted.
func MeasureFill(r detection.Region, mask *image.Gray) FillMetrics {
	m := FillMetrics{Area: r.Area}
	inside := interior(r)
	b := mask.Bounds()
	box := r.Box
	for y := 0; y < box.H; y++ {
		for x := 0; x < box.W; x++ {
			if !inside[y*box.W+x] {
				continue
			}
			px, py := box.X+x, box.Y+y
			if !(image.Point{X: px, Y: py}).In(b) {
				continue
			}
			if mask.Pix[(py-b.Min.Y)*mask.Stride+(px-b.Min.X)] != 0 {
				m.MarkedPixels++
			}
		}
	}

	if m.Area > 0 {
		m.FillRatio = float64(m.MarkedPixels) / m.Area
	}
	if boxArea := box.W * box.H; boxArea > 0 {
		m.Density = float64(m.MarkedPixels) / float64(boxArea)
	}
	return m
}

// MaskCoverage is the share of the sheet mask that is set. A value near
// 0 or 1 usually means the thresholder failed on the whole sheet.
func MaskCoverage(mask *image.Gray) float64 {
	if mask == nil || len(mask.Pix) == 0 {
		return 0
	}
	b := mask.Bounds()
	return float64(imgproc.CountNonZero(mask)) / float64(b.Dx()*b.Dy())
}

// interior returns a box-sized coverage bitmap of the outline and its
// enclosed pixels.
func interior(r detection.Region) []bool {
	box := r.Box
	inside := make([]bool, box.W*box.H)
	c := r.Contour
	n := len(c)

	xs := make([]float64, 0, 8)
	for row := 0; row < box.H; row++ {
		y := float64(box.Y + row)
		xs = xs[:0]
		for i := 0; i < n; i++ {
			a, b := c[i], c[(i+1)%n]
			ay, by := float64(a.Y), float64(b.Y)
			if (ay > y) == (by > y) {
				continue
			}
			t := (y - ay) / (by - ay)
			xs = append(xs, float64(a.X)+t*float64(b.X-a.X))
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			from := int(math.Ceil(xs[i])) - box.X
			to := int(math.Floor(xs[i+1])) - box.X
			for x := max(from, 0); x <= min(to, box.W-1); x++ {
				inside[row*box.W+x] = true
			}
		}
	}

	for _, p := range c {
		x, y := p.X-box.X, p.Y-box.Y
		if x >= 0 && y >= 0 && x < box.W && y < box.H {
			inside[y*box.W+x] = true
		}
	}
	return inside
}
