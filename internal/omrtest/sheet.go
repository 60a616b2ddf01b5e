// Package omrtest draws synthetic answer sheets and photos of them for
// tests across the grading packages.
package omrtest

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
)

// Ink and paper intensities used by Render.
const (
	Paper      = 250
	Ink        = 25
	Background = 40
)

// Sheet describes a rectified bubble grid.
type Sheet struct {
	Questions int
	Options   int

	// Radius is the outer bubble radius; Stroke the printed outline width.
	Radius int
	Stroke int

	// Pitch is the horizontal distance between option centres and Row the
	// vertical distance between questions.
	Pitch int
	Row   int

	// Margin is the paper border around the grid.
	Margin int

	// Fill returns how much of bubble (q, o) is pencilled in, from 0 (empty
	// outline) to 1 (solid). Filling grows from the bottom of the bubble.
	Fill func(q, o int) float64
}

// NewSheet returns a q×o sheet with the standard bubble geometry and no
// marks.
func NewSheet(questions, options int) Sheet {
	return Sheet{
		Questions: questions,
		Options:   options,
		Radius:    16,
		Stroke:    4,
		Pitch:     50,
		Row:       60,
		Margin:    60,
		Fill:      func(int, int) float64 { return 0 },
	}
}

// Marked fills exactly one bubble per question: answers[q] is the option,
// or a negative value to leave question q blank.
func Marked(answers ...int) func(q, o int) float64 {
	return func(q, o int) float64 {
		if q < len(answers) && answers[q] == o {
			return 1
		}
		return 0
	}
}

// Size returns the rendered width and height.
func (s Sheet) Size() (int, int) {
	w := 2*s.Margin + (s.Options-1)*s.Pitch
	h := 2*s.Margin + (s.Questions-1)*s.Row
	return w, h
}

// Center returns the centre of bubble (q, o).
func (s Sheet) Center(q, o int) image.Point {
	return image.Point{X: s.Margin + o*s.Pitch, Y: s.Margin + q*s.Row}
}

// Render draws the sheet.
func (s Sheet) Render() *image.Gray {
	w, h := s.Size()
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = Paper
	}
	for q := 0; q < s.Questions; q++ {
		for o := 0; o < s.Options; o++ {
			c := s.Center(q, o)
			Ring(g, c.X, c.Y, s.Radius, s.Stroke)
			if f := s.Fill(q, o); f > 0 {
				PartialDisc(g, c.X, c.Y, s.Radius, f)
			}
		}
	}
	return g
}

// Ring draws a circle outline of the given outer radius and stroke.
func Ring(g *image.Gray, cx, cy, r, stroke int) {
	inner := r - stroke
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			d := (x-cx)*(x-cx) + (y-cy)*(y-cy)
			if d <= r*r && d > inner*inner {
				g.SetGray(x, y, color.Gray{Y: Ink})
			}
		}
	}
}

// PartialDisc fills the lowest fraction f of a disc.
func PartialDisc(g *image.Gray, cx, cy, r int, f float64) {
	top := cy + r - int(math.Round(f*float64(2*r+1))) + 1
	for y := max(top, cy-r); y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				g.SetGray(x, y, color.Gray{Y: Ink})
			}
		}
	}
}

// Photo places sheet onto a w×h dark background so that its corners land
// on corners (top-left, top-right, bottom-right, bottom-left).
func Photo(sheet *image.Gray, w, h int, corners [4]image.Point) *image.Gray {
	sw, sh := sheet.Bounds().Dx(), sheet.Bounds().Dy()
	photoToSheet := imgproc.QuadrilateralToQuadrilateral(
		float64(corners[0].X), float64(corners[0].Y),
		float64(corners[1].X), float64(corners[1].Y),
		float64(corners[2].X), float64(corners[2].Y),
		float64(corners[3].X), float64(corners[3].Y),
		0, 0, float64(sw-1), 0, float64(sw-1), float64(sh-1), 0, float64(sh-1),
	)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := photoToSheet.Apply(float64(x), float64(y))
			px, py := int(math.Round(sx)), int(math.Round(sy))
			if px < 0 || py < 0 || px >= sw || py >= sh {
				out.Pix[y*out.Stride+x] = Background
				continue
			}
			out.Pix[y*out.Stride+x] = sheet.Pix[py*sheet.Stride+px]
		}
	}
	return out
}

// Centered returns corners that place a sheet of size sw×sh in the middle
// of a w×h photo without distortion.
func Centered(w, h, sw, sh int) [4]image.Point {
	x0, y0 := (w-sw)/2, (h-sh)/2
	return [4]image.Point{
		{X: x0, Y: y0},
		{X: x0 + sw - 1, Y: y0},
		{X: x0 + sw - 1, Y: y0 + sh - 1},
		{X: x0, Y: y0 + sh - 1},
	}
}

// WritePNG saves img under dir and returns the path.
func WritePNG(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imgproc.Save(path, img); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// WriteFile saves raw bytes under dir and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
