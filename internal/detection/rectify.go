package detection

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
)

// OrderCorners returns the corners as top-left, top-right, bottom-right,
// bottom-left.
//
// Top-left has the smallest x+y and bottom-right the largest; top-right has
// the smallest y-x and bottom-left the largest. On a sheet rotated close to
// 45 degrees two rules can pick the same point; the result is then not a
// permutation of the input and Rectify rejects it.
func OrderCorners(q Quadrilateral) Quadrilateral {
	var out Quadrilateral
	minSum, maxSum := math.MaxInt, math.MinInt
	minDiff, maxDiff := math.MaxInt, math.MinInt
	for _, p := range q {
		sum, diff := p.X+p.Y, p.Y-p.X
		if sum < minSum {
			minSum, out[0] = sum, p
		}
		if sum > maxSum {
			maxSum, out[2] = sum, p
		}
		if diff < minDiff {
			minDiff, out[1] = diff, p
		}
		if diff > maxDiff {
			maxDiff, out[3] = diff, p
		}
	}
	return out
}

// TargetSize returns the width and height of the rectified sheet for
// ordered corners: the longer of each pair of opposite edges, rounded.
func TargetSize(q Quadrilateral) (int, int) {
	tl, tr, br, bl := q[0], q[1], q[2], q[3]
	w := math.Max(dist(tl, tr), dist(bl, br))
	h := math.Max(dist(tl, bl), dist(tr, br))
	return int(math.Round(w)), int(math.Round(h))
}

// RectifiedSheet is the sheet warped to a fronto-parallel view.
type RectifiedSheet struct {
	// Color is the rectified source image.
	Color *image.NRGBA

	// Gray is the rectified intensity raster the segmenter works on.
	Gray *image.Gray

	// Corners are the ordered source corners the sheet was cut from.
	Corners Quadrilateral
}

// Bounds returns the rectified frame, anchored at (0,0).
func (s *RectifiedSheet) Bounds() image.Rectangle {
	return s.Gray.Bounds()
}

// Rectify warps the sheet delimited by q to fill a frame whose size comes
// from TargetSize.
//
// Corners are canonicalized with OrderCorners first, so q may come straight
// from LocateDocument. The destination corners (0,0), (w-1,0), (w-1,h-1),
// (0,h-1) are mapped back into the source and every output pixel is sampled
// bilinearly.
//
// The only failure is a degenerate quadrilateral: corners that do not order
// into four distinct points, or a target narrower than two pixels.
func Rectify(img image.Image, q Quadrilateral) (*RectifiedSheet, error) {
	ordered := OrderCorners(q)
	seen := make(map[Point]bool, 4)
	for _, p := range ordered {
		seen[p] = true
	}
	if len(seen) != 4 {
		return nil, fmt.Errorf("degenerate quadrilateral %v", q)
	}

	w, h := TargetSize(ordered)
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("quadrilateral %v too small to rectify (%dx%d)", q, w, h)
	}

	tl, tr, br, bl := ordered[0], ordered[1], ordered[2], ordered[3]
	dstToSrc := imgproc.QuadrilateralToQuadrilateral(
		0, 0, float64(w-1), 0, float64(w-1), float64(h-1), 0, float64(h-1),
		float64(tl.X), float64(tl.Y), float64(tr.X), float64(tr.Y),
		float64(br.X), float64(br.Y), float64(bl.X), float64(bl.Y),
	)

	color := imgproc.WarpColor(img, dstToSrc, w, h)
	return &RectifiedSheet{
		Color:   color,
		Gray:    imgproc.ToGray(color),
		Corners: ordered,
	}, nil
}

// FullFrame wraps an image that is already a fronto-parallel sheet, such as
// a flatbed scan, without warping it. The corners are the image corners.
func FullFrame(img image.Image) *RectifiedSheet {
	color := imaging.Clone(img)
	w, h := color.Bounds().Dx(), color.Bounds().Dy()
	return &RectifiedSheet{
		Color:   color,
		Gray:    imgproc.ToGray(color),
		Corners: Quadrilateral{{0, 0}, {w - 1, 0}, {w - 1, h - 1}, {0, h - 1}},
	}
}
