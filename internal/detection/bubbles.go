package detection

import (
	"fmt"
	"image"
	"math"

	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
	"github.com/ironsheep/omr-grader/internal/omr"
)

// Region is a bubble candidate: a traced outline and the shape measures
// derived from it. Build regions with NewRegion and treat them as
// read-only afterwards.
type Region struct {
	Contour Contour `json:"-"`

	// Area is the polygon area enclosed by Contour.
	Area float64 `json:"area"`

	// Perimeter is the length of Contour.
	Perimeter float64 `json:"perimeter"`

	Box Box `json:"box"`

	// AspectRatio is Box.W / Box.H.
	AspectRatio float64 `json:"aspect_ratio"`

	// Circularity is 4π·Area/Perimeter², 1.0 for a perfect circle.
	Circularity float64 `json:"circularity"`

	// Center is the centre of Box.
	Center Point `json:"center"`
}

// NewRegion measures a contour.
func NewRegion(c Contour) Region {
	r := Region{
		Contour:   c,
		Area:      c.Area(),
		Perimeter: c.ArcLength(),
		Box:       c.BoundingBox(),
	}
	if r.Box.H > 0 {
		r.AspectRatio = float64(r.Box.W) / float64(r.Box.H)
	}
	if r.Perimeter > 0 {
		r.Circularity = 4 * math.Pi * r.Area / (r.Perimeter * r.Perimeter)
	}
	r.Center = Point{X: r.Box.X + r.Box.W/2, Y: r.Box.Y + r.Box.H/2}
	return r
}

// ShapeFilter decides which regions look like bubbles. Every bound is
// inclusive: a region exactly at a limit is accepted.
type ShapeFilter struct {
	// MinAreaFraction and MaxAreaFraction bound the region area as a share
	// of the rectified sheet area.
	MinAreaFraction float64 `yaml:"min_area_fraction" json:"min_area_fraction"`
	MaxAreaFraction float64 `yaml:"max_area_fraction" json:"max_area_fraction"`

	// MinArea is an absolute floor on the region area in pixels.
	MinArea float64 `yaml:"min_area" json:"min_area"`

	// MinSide is the smallest bounding box width and height in pixels.
	MinSide int `yaml:"min_side" json:"min_side"`

	// MinAspect and MaxAspect bound the bounding box width/height ratio.
	MinAspect float64 `yaml:"min_aspect" json:"min_aspect"`
	MaxAspect float64 `yaml:"max_aspect" json:"max_aspect"`

	MinCircularity float64 `yaml:"min_circularity" json:"min_circularity"`
}

// DefaultShapeFilter returns the filter for printed circular bubbles.
func DefaultShapeFilter() ShapeFilter {
	return ShapeFilter{
		MinAreaFraction: 0.0001,
		MaxAreaFraction: 0.01,
		MinArea:         100,
		MinSide:         12,
		MinAspect:       0.6,
		MaxAspect:       1.4,
		MinCircularity:  0.6,
	}
}

// Reject returns why r is not a bubble on a sheet of frameArea pixels, or
// "" when it is.
func (f ShapeFilter) Reject(r Region, frameArea float64) string {
	switch {
	case r.Area < f.MinAreaFraction*frameArea:
		return "area below minimum"
	case r.Area > f.MaxAreaFraction*frameArea:
		return "area above maximum"
	case r.Area < f.MinArea:
		return "area below absolute minimum"
	case r.Box.W < f.MinSide || r.Box.H < f.MinSide:
		return "too small"
	case r.AspectRatio < f.MinAspect || r.AspectRatio > f.MaxAspect:
		return "not square enough"
	case r.Circularity < f.MinCircularity:
		return "not round enough"
	}
	return ""
}

// Accept reports whether r passes every bound.
func (f ShapeFilter) Accept(r Region, frameArea float64) bool {
	return f.Reject(r, frameArea) == ""
}

// SegmenterConfig assembles the bubble segmenter.
type SegmenterConfig struct {
	Thresholder imgproc.Thresholder

	// CloseRadius and OpenRadius size the morphological clean-up: closing
	// bridges gaps in pencil strokes, opening removes speckle. 0 skips the
	// step.
	CloseRadius float64
	OpenRadius  float64

	Filter ShapeFilter

	// MinBubbles is the fewest accepted regions for a usable sheet.
	MinBubbles int
}

// Segmentation is the segmenter output.
type Segmentation struct {
	// Mask is the cleaned binary sheet mask; fill analysis counts its
	// pixels.
	Mask *image.Gray

	// Candidates is the number of outer contours examined.
	Candidates int

	// Regions are the accepted bubbles in contour order.
	Regions []Region
}

// SegmentBubbles binarizes a rectified sheet and extracts bubble regions.
//
// Parameters:
//   - gray: Rectified sheet intensity, zero-origin.
//   - cfg: Thresholding strategy, morphology radii and shape filter.
//
// Returns the mask and accepted regions, or an error wrapping
// omr.ErrInsufficientBubbles when fewer than cfg.MinBubbles pass the
// filter.
//
// # Algorithm
//
//  1. Binarize with cfg.Thresholder (ink = 255)
//  2. Morphological close, then open
//  3. Outer contours of the mask
//  4. Keep the regions ShapeFilter accepts
func SegmentBubbles(gray *image.Gray, cfg SegmenterConfig) (*Segmentation, error) {
	th := cfg.Thresholder
	if th == nil {
		th = imgproc.OtsuThreshold{}
	}

	mask := th.Threshold(gray)
	if cfg.CloseRadius > 0 {
		mask = imgproc.Close(mask, cfg.CloseRadius)
	}
	if cfg.OpenRadius > 0 {
		mask = imgproc.Open(mask, cfg.OpenRadius)
	}

	contours := FindExternalContours(mask)
	frameArea := float64(gray.Bounds().Dx() * gray.Bounds().Dy())
	regions := make([]Region, 0)
	for _, c := range contours {
		r := NewRegion(c)
		if cfg.Filter.Accept(r, frameArea) {
			regions = append(regions, r)
		}
	}

	seg := &Segmentation{Mask: mask, Candidates: len(contours), Regions: regions}
	if len(regions) < cfg.MinBubbles {
		return seg, fmt.Errorf("%w: found %d, need at least %d", omr.ErrInsufficientBubbles, len(regions), cfg.MinBubbles)
	}
	return seg, nil
}
