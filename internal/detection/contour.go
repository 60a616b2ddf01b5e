package detection

import (
	"image"
	"math"
)

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// ImagePoint converts p to an image.Point.
func (p Point) ImagePoint() image.Point {
	return image.Point{X: p.X, Y: p.Y}
}

// Contour is a closed, ordered sequence of boundary points. The last point
// connects back to the first.
type Contour []Point

// Box is an axis-aligned bounding box. W and H count pixels, so a single
// point has a 1×1 box.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Area returns the enclosed area of the contour by the shoelace formula.
// The contour is treated as a polygon through the pixel centres, so a
// single pixel or a straight run has area 0.
func (c Contour) Area() float64 {
	if len(c) < 3 {
		return 0
	}
	var sum int
	for i := range c {
		p, q := c[i], c[(i+1)%len(c)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(float64(sum)) / 2
}

// ArcLength returns the perimeter of the closed contour.
func (c Contour) ArcLength() float64 {
	if len(c) < 2 {
		return 0
	}
	var length float64
	for i := range c {
		p, q := c[i], c[(i+1)%len(c)]
		length += math.Hypot(float64(q.X-p.X), float64(q.Y-p.Y))
	}
	return length
}

// BoundingBox returns the smallest box containing every point.
func (c Contour) BoundingBox() Box {
	if len(c) == 0 {
		return Box{}
	}
	minX, minY := c[0].X, c[0].Y
	maxX, maxY := minX, minY
	for _, p := range c[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return Box{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}
}

// ImagePoints converts the contour for drawing.
func (c Contour) ImagePoints() []image.Point {
	pts := make([]image.Point, len(c))
	for i, p := range c {
		pts[i] = p.ImagePoint()
	}
	return pts
}

// Clockwise neighbour offsets in image coordinates (y grows downward),
// starting east.
var neighbours = [8]Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// FindExternalContours traces the outer boundary of every outermost
// connected shape in a binary mask.
//
// Parameters:
//   - mask: Binary raster; any non-zero pixel is foreground. Bounds must
//     start at (0,0).
//
// Returns one contour per outermost shape, in raster order of each shape's
// top-left pixel. Shapes lying inside a hole of another shape (the bubbles
// inside a sheet outline, the speck inside a ring) are skipped.
//
// # Algorithm
//
//  1. Labelling: flood-fill groups foreground pixels into 8-connected
//     components
//  2. Outside background: flood-fill from the image border marks the
//     4-connected background reachable from outside
//  3. External test: a component is kept when it touches the border or a
//     pixel of the outside background
//  4. Tracing: a clockwise radial sweep walks the boundary of each kept
//     component from its top-left pixel until the first step repeats
func FindExternalContours(mask *image.Gray) []Contour {
	width, height := mask.Bounds().Dx(), mask.Bounds().Dy()
	fg := func(x, y int) bool {
		return mask.Pix[y*mask.Stride+x] != 0
	}

	labels := make([]int32, width*height)
	var starts []Point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if fg(x, y) && labels[y*width+x] == 0 {
				starts = append(starts, Point{X: x, Y: y})
				labelComponent(mask, labels, x, y, int32(len(starts)))
			}
		}
	}
	if len(starts) == 0 {
		return nil
	}

	outside := outsideBackground(mask)
	external := make([]bool, len(starts)+1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			id := labels[y*width+x]
			if id == 0 || external[id] {
				continue
			}
			if x == 0 || y == 0 || x == width-1 || y == height-1 {
				external[id] = true
				continue
			}
			if outside[y*width+x-1] || outside[y*width+x+1] ||
				outside[(y-1)*width+x] || outside[(y+1)*width+x] {
				external[id] = true
			}
		}
	}

	contours := make([]Contour, 0)
	for i, s := range starts {
		id := int32(i + 1)
		if !external[id] {
			continue
		}
		contours = append(contours, traceBoundary(labels, width, height, s, id))
	}
	return contours
}

// labelComponent flood-fills the 8-connected component containing (x, y).
//
// Uses a stack-based approach (not recursive) so large sheets cannot
// overflow the goroutine stack.
func labelComponent(mask *image.Gray, labels []int32, x, y int, id int32) {
	width, height := mask.Bounds().Dx(), mask.Bounds().Dy()
	stack := []Point{{X: x, Y: y}}
	labels[y*width+x] = id

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, d := range neighbours {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			i := ny*width + nx
			if labels[i] != 0 || mask.Pix[ny*mask.Stride+nx] == 0 {
				continue
			}
			labels[i] = id
			stack = append(stack, Point{X: nx, Y: ny})
		}
	}
}

// outsideBackground marks the background pixels 4-connected to the image
// border.
func outsideBackground(mask *image.Gray) []bool {
	width, height := mask.Bounds().Dx(), mask.Bounds().Dy()
	outside := make([]bool, width*height)
	stack := make([]Point, 0, 2*(width+height))

	push := func(x, y int) {
		i := y*width + x
		if outside[i] || mask.Pix[y*mask.Stride+x] != 0 {
			return
		}
		outside[i] = true
		stack = append(stack, Point{X: x, Y: y})
	}
	for x := 0; x < width; x++ {
		push(x, 0)
		push(x, height-1)
	}
	for y := 0; y < height; y++ {
		push(0, y)
		push(width-1, y)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.X > 0 {
			push(p.X-1, p.Y)
		}
		if p.X < width-1 {
			push(p.X+1, p.Y)
		}
		if p.Y > 0 {
			push(p.X, p.Y-1)
		}
		if p.Y < height-1 {
			push(p.X, p.Y+1)
		}
	}
	return outside
}

// traceBoundary walks the outer boundary of component id clockwise from
// start, which must be the component's first pixel in raster order.
func traceBoundary(labels []int32, width, height int, start Point, id int32) Contour {
	in := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < width && y < height && labels[y*width+x] == id
	}

	// Search from the current pixel for the next boundary pixel, sweeping
	// clockwise from the direction just past back.
	next := func(cur Point, back int) (Point, int, bool) {
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			n := Point{X: cur.X + neighbours[d].X, Y: cur.Y + neighbours[d].Y}
			if in(n.X, n.Y) {
				return n, d, true
			}
		}
		return cur, 0, false
	}

	// Nothing lies west of, or above, the first raster pixel.
	second, firstDir, ok := next(start, 4)
	if !ok {
		return Contour{start}
	}

	contour := Contour{start}
	cur, dir := second, firstDir
	limit := 4*width*height + 8
	for step := 0; step < limit; step++ {
		if cur == start {
			n, d, _ := next(cur, (dir+4)%8)
			if n == second && d == firstDir {
				break
			}
		}
		contour = append(contour, cur)
		cur, dir, _ = next(cur, (dir+4)%8)
	}
	return contour
}
