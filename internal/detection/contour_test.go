package detection

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/omr-grader/internal/omrtest"
)

// newMask returns an empty w×h mask.
func newMask(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

// fillMask sets the rectangle [x0,x1)×[y0,y1).
func fillMask(m *image.Gray, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.SetGray(x, y, color.Gray{Y: 255})
		}
	}
}

func TestFindExternalContours_Square(t *testing.T) {
	m := newMask(30, 30)
	fillMask(m, 5, 5, 15, 15)

	contours := FindExternalContours(m)
	if len(contours) != 1 {
		t.Fatalf("got %d contours, want 1", len(contours))
	}
	c := contours[0]
	if got := c.Area(); got != 81 {
		t.Errorf("Area: got %v, want 81", got)
	}
	if got := c.ArcLength(); got != 36 {
		t.Errorf("ArcLength: got %v, want 36", got)
	}
	if got := c.BoundingBox(); got != (Box{X: 5, Y: 5, W: 10, H: 10}) {
		t.Errorf("BoundingBox: got %+v", got)
	}
}

func TestFindExternalContours_SkipsNested(t *testing.T) {
	m := omrtest.NewSheet(1, 1).Render()
	// Render draws ink dark on paper; build a mask of the ink instead.
	mask := newMask(m.Bounds().Dx(), m.Bounds().Dy())
	for i, p := range m.Pix {
		if p < 128 {
			mask.Pix[i] = 255
		}
	}
	// A speck inside the ring's hole.
	mask.SetGray(60, 60, color.Gray{Y: 255})
	// A separate blob outside.
	fillMask(mask, 2, 2, 6, 6)

	contours := FindExternalContours(mask)
	if len(contours) != 2 {
		t.Fatalf("got %d contours, want 2 (blob and ring)", len(contours))
	}
	for _, c := range contours {
		if b := c.BoundingBox(); b.W == 1 && b.H == 1 {
			t.Error("speck inside the ring should not be an external contour")
		}
	}
}

func TestFindExternalContours_Empty(t *testing.T) {
	if got := FindExternalContours(newMask(10, 10)); len(got) != 0 {
		t.Errorf("got %d contours from an empty mask", len(got))
	}
}

func TestFindExternalContours_TouchingBorder(t *testing.T) {
	m := newMask(20, 20)
	fillMask(m, 0, 0, 20, 3)

	contours := FindExternalContours(m)
	if len(contours) != 1 {
		t.Fatalf("got %d contours, want 1", len(contours))
	}
	if b := contours[0].BoundingBox(); b.W != 20 || b.H != 3 {
		t.Errorf("BoundingBox: got %+v, want 20x3", b)
	}
}

func TestFindExternalContours_Disc(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 60, 60))
	omrtest.PartialDisc(g, 30, 30, 16, 1)

	contours := FindExternalContours(g)
	if len(contours) != 1 {
		t.Fatalf("got %d contours, want 1", len(contours))
	}
	r := NewRegion(contours[0])
	if r.Box.W != 33 || r.Box.H != 33 {
		t.Errorf("box: got %dx%d, want 33x33", r.Box.W, r.Box.H)
	}
	if math.Abs(r.AspectRatio-1) > 1e-9 {
		t.Errorf("AspectRatio: got %v, want 1", r.AspectRatio)
	}
	if r.Circularity < 0.8 || r.Circularity > 1 {
		t.Errorf("Circularity: got %v, want within [0.8, 1]", r.Circularity)
	}
	if r.Center != (Point{X: 30, Y: 30}) {
		t.Errorf("Center: got %+v, want (30,30)", r.Center)
	}
}

func TestApproxPolyDP_Square(t *testing.T) {
	m := newMask(40, 40)
	fillMask(m, 5, 8, 30, 35)
	c := FindExternalContours(m)[0]

	approx := ApproxPolyDP(c, 0.02*c.ArcLength())
	if len(approx) != 4 {
		t.Fatalf("got %d vertices, want 4: %v", len(approx), approx)
	}
	if !IsConvex(approx) {
		t.Error("rectangle approximation should be convex")
	}

	want := map[Point]bool{{5, 8}: true, {29, 8}: true, {29, 34}: true, {5, 34}: true}
	for _, p := range approx {
		if !want[p] {
			t.Errorf("unexpected vertex %+v", p)
		}
	}
}

func TestApproxPolyDP_KeepsOrientation(t *testing.T) {
	c := Contour{{0, 0}, {5, 0}, {10, 0}, {10, 5}, {10, 10}, {5, 10}, {0, 10}, {0, 5}}
	approx := ApproxPolyDP(c, 1)
	want := Contour{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if len(approx) != len(want) {
		t.Fatalf("got %v, want %v", approx, want)
	}
	for i := range want {
		if approx[i] != want[i] {
			t.Errorf("vertex %d: got %+v, want %+v", i, approx[i], want[i])
		}
	}
}

func TestIsConvex(t *testing.T) {
	tests := []struct {
		name string
		poly Contour
		want bool
	}{
		{"square", Contour{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, true},
		{"counter-clockwise", Contour{{0, 0}, {0, 10}, {10, 10}, {10, 0}}, true},
		{"dart", Contour{{0, 0}, {10, 5}, {0, 10}, {3, 5}}, false},
		{"collinear", Contour{{0, 0}, {5, 0}, {10, 0}, {5, 5}}, false},
		{"too few", Contour{{0, 0}, {1, 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConvex(tt.poly); got != tt.want {
				t.Errorf("IsConvex: got %v, want %v", got, tt.want)
			}
		})
	}
}
