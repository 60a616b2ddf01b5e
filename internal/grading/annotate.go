package grading

import (
	"fmt"
	"image"

	"github.com/ironsheep/omr-grader/internal/detection"
	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
)

// Annotate draws the grading outcome on a copy of the rectified sheet.
//
// The selected bubble is outlined green when correct and red otherwise;
// on a wrong or missing answer the keyed bubble is outlined yellow.
// Ambiguous or incomplete questions get a red box around the whole row.
// Question numbers go left of each row and the score in the top-left
// corner.
func Annotate(sheet *detection.RectifiedSheet, res *Result) *image.NRGBA {
	a := imgproc.NewAnnotator(sheet.Color)
	pal := a.Palette

	for _, q := range res.Questions {
		if len(q.Regions) == 0 {
			continue
		}
		row := rowBounds(q.Regions)

		if q.Error != "" {
			a.Rect(row.Inset(-4), pal.Incorrect, 2)
		}
		if q.Selected != nil && *q.Selected < len(q.Regions) {
			c := pal.Incorrect
			if q.IsCorrect {
				c = pal.Correct
			}
			a.Outline(q.Regions[*q.Selected].Contour.ImagePoints(), c, 3)
		}
		if q.Correct != nil && !q.IsCorrect && *q.Correct < len(q.Regions) {
			a.Outline(q.Regions[*q.Correct].Contour.ImagePoints(), pal.Expected, 2)
		}
		a.Label(max(row.Min.X-28, 0), max(row.Min.Y+row.Dy()/2-7, 0), fmt.Sprintf("%d", q.Number))
	}

	a.Label(4, 4, fmt.Sprintf("%.2f%% (%d/%d)", res.Score, res.Correct, res.Scored))
	return a.Image()
}

func rowBounds(regions []detection.Region) image.Rectangle {
	r := regions[0].Box.Rect()
	for _, reg := range regions[1:] {
		r = r.Union(reg.Box.Rect())
	}
	return r
}
