package detection

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
	"github.com/ironsheep/omr-grader/internal/omr"
)

// Quadrilateral is the four corners of a detected sheet, in source image
// pixels. The order is whatever the contour produced; use OrderCorners
// before relying on it.
type Quadrilateral [4]Point

// Contour returns the corners as a closed polygon.
func (q Quadrilateral) Contour() Contour {
	return Contour{q[0], q[1], q[2], q[3]}
}

// Area returns the enclosed area of the quadrilateral.
func (q Quadrilateral) Area() float64 {
	return q.Contour().Area()
}

// LocatorConfig tunes the document locator. The zero value is not useful;
// start from DefaultLocatorConfig.
type LocatorConfig struct {
	// BlurRadius is the Gaussian smoothing radius applied before edge
	// detection. 2 approximates a 5x5 kernel.
	BlurRadius float64 `yaml:"blur_radius" json:"blur_radius"`

	// CannyLow and CannyHigh are the hysteresis thresholds on the Sobel
	// gradient magnitude.
	CannyLow  int `yaml:"canny_low" json:"canny_low"`
	CannyHigh int `yaml:"canny_high" json:"canny_high"`

	// EdgeDilation thickens the edge map by this radius before contour
	// tracing so that a sheet outline with one-pixel gaps still closes.
	// 0 disables it.
	EdgeDilation float64 `yaml:"edge_dilation" json:"edge_dilation"`

	// EpsilonFraction is the Douglas-Peucker tolerance as a fraction of the
	// contour perimeter.
	EpsilonFraction float64 `yaml:"epsilon_fraction" json:"epsilon_fraction"`

	// MinAreaFraction is the smallest share of the image the sheet contour
	// must enclose.
	MinAreaFraction float64 `yaml:"min_area_fraction" json:"min_area_fraction"`

	// MaxDimension bounds the longer side of the image used for locating.
	// Larger photos are downscaled and the corners scaled back. 0 disables
	// downscaling.
	MaxDimension int `yaml:"max_dimension" json:"max_dimension"`
}

// DefaultLocatorConfig returns the locator settings used for phone photos
// and flatbed scans alike.
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		BlurRadius:      2,
		CannyLow:        50,
		CannyHigh:       150,
		EdgeDilation:    1,
		EpsilonFraction: 0.02,
		MinAreaFraction: 0.5,
		MaxDimension:    1200,
	}
}

// LocateDocument finds the answer sheet in a photo.
//
// Parameters:
//   - img: Source photo. The sheet is expected to be lighter than the
//     surface it lies on, with its four edges inside the frame.
//   - cfg: Locator settings, see DefaultLocatorConfig.
//
// Returns the sheet corners in img's pixel space (relative to
// img.Bounds().Min), or an error wrapping omr.ErrDocumentNotFound.
//
// # Algorithm
//
//  1. Preprocess: grayscale, histogram equalization, Gaussian blur
//  2. Edges: Canny with the configured hysteresis thresholds, optionally
//     dilated to bridge small gaps
//  3. Contours: outer boundaries of the edge map, largest area first
//  4. Selection: the first contour whose Douglas-Peucker approximation at
//     EpsilonFraction of its perimeter has exactly four convex vertices and
//     which encloses more than MinAreaFraction of the image
//
// The first acceptable candidate wins; there is no scoring among
// candidates.
func LocateDocument(img image.Image, cfg LocatorConfig) (Quadrilateral, error) {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return Quadrilateral{}, fmt.Errorf("%w: image too small (%dx%d)", omr.ErrDocumentNotFound, b.Dx(), b.Dy())
	}

	work := img
	scaleX, scaleY := 1.0, 1.0
	if cfg.MaxDimension > 0 && (b.Dx() > cfg.MaxDimension || b.Dy() > cfg.MaxDimension) {
		work = imaging.Fit(img, cfg.MaxDimension, cfg.MaxDimension, imaging.Linear)
		scaleX = float64(b.Dx()) / float64(work.Bounds().Dx())
		scaleY = float64(b.Dy()) / float64(work.Bounds().Dy())
	}

	edges := DocumentEdges(work, cfg)
	q, ok := findSheet(edges, cfg)
	if !ok {
		return Quadrilateral{}, omr.ErrDocumentNotFound
	}

	if scaleX != 1 || scaleY != 1 {
		maxX, maxY := b.Dx()-1, b.Dy()-1
		for i := range q {
			q[i] = Point{
				X: min(int(math.Round(float64(q[i].X)*scaleX)), maxX),
				Y: min(int(math.Round(float64(q[i].Y)*scaleY)), maxY),
			}
		}
	}
	return q, nil
}

// DocumentEdges runs the locator's preprocessing and returns the edge map
// that contours are traced on.
func DocumentEdges(img image.Image, cfg LocatorConfig) *image.Gray {
	gray := imgproc.ToGray(img)
	gray = imgproc.EqualizeHist(gray)
	gray = imgproc.GaussianBlur(gray, cfg.BlurRadius)
	edges := imgproc.Canny(gray, cfg.CannyLow, cfg.CannyHigh)
	if cfg.EdgeDilation > 0 {
		edges = imgproc.Dilate(edges, cfg.EdgeDilation)
	}
	return edges
}

func findSheet(edges *image.Gray, cfg LocatorConfig) (Quadrilateral, bool) {
	contours := FindExternalContours(edges)
	areas := make([]float64, len(contours))
	for i, c := range contours {
		areas[i] = c.Area()
	}
	order := make([]int, len(contours))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return areas[order[i]] > areas[order[j]]
	})

	minArea := cfg.MinAreaFraction * float64(edges.Bounds().Dx()*edges.Bounds().Dy())
	for _, i := range order {
		if areas[i] <= minArea {
			break
		}
		c := contours[i]
		if q, ok := sheetQuad(c, minArea, cfg.EpsilonFraction*c.ArcLength()); ok {
			return q, true
		}
	}
	return Quadrilateral{}, false
}

// sheetQuad approximates c and accepts it when the result is a convex
// quadrilateral that itself encloses more than minArea.
func sheetQuad(c Contour, minArea, epsilon float64) (Quadrilateral, bool) {
	approx := ApproxPolyDP(c, epsilon)
	if len(approx) != 4 || !IsConvex(approx) {
		return Quadrilateral{}, false
	}
	if approx.Area() <= minArea {
		return Quadrilateral{}, false
	}
	return Quadrilateral{approx[0], approx[1], approx[2], approx[3]}, true
}
