package imaging

import (
	"image"
	"image/color"
	"image/draw"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Palette holds the colours used to annotate a graded sheet.
type Palette struct {
	Correct   colorful.Color
	Incorrect colorful.Color
	Expected  colorful.Color
	Detected  colorful.Color
	Text      colorful.Color
	TextBg    colorful.Color
}

// DefaultPalette returns the green/red/yellow scheme used on graded sheets.
func DefaultPalette() Palette {
	return Palette{
		Correct:   mustHex("#00c853"),
		Incorrect: mustHex("#d50000"),
		Expected:  mustHex("#ffd600"),
		Detected:  mustHex("#2979ff"),
		Text:      mustHex("#ffffff"),
		TextBg:    mustHex("#000000"),
	}
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic("imaging: bad palette colour " + s)
	}
	return c
}

// ConfidenceColor maps a 0-100 confidence onto a red→green hue ramp.
func ConfidenceColor(confidence float64) colorful.Color {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return colorful.Hsv(120*confidence/100, 0.85, 0.9)
}

// Annotator draws outlines and labels on a private copy of an image.
// The source passed to NewAnnotator is never modified.
type Annotator struct {
	img     *image.NRGBA
	Palette Palette
}

// NewAnnotator copies src into a fresh zero-origin canvas.
func NewAnnotator(src image.Image) *Annotator {
	b := src.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)
	return &Annotator{img: canvas, Palette: DefaultPalette()}
}

// Image returns the annotated canvas.
func (a *Annotator) Image() *image.NRGBA {
	return a.img
}

// Outline strokes a closed polyline through pts with the given thickness.
func (a *Annotator) Outline(pts []image.Point, c colorful.Color, thickness int) {
	if len(pts) == 0 {
		return
	}
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		a.line(p, q, c, thickness)
	}
}

// Rect strokes an axis-aligned rectangle.
func (a *Annotator) Rect(r image.Rectangle, c colorful.Color, thickness int) {
	a.Outline([]image.Point{
		r.Min,
		{X: r.Max.X - 1, Y: r.Min.Y},
		{X: r.Max.X - 1, Y: r.Max.Y - 1},
		{X: r.Min.X, Y: r.Max.Y - 1},
	}, c, thickness)
}

// Tint blends c over every pixel of mask that is set, at the given opacity.
func (a *Annotator) Tint(mask *image.Gray, c colorful.Color, opacity float64) {
	b := a.img.Bounds().Intersect(mask.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y == 0 {
				continue
			}
			a.blend(x, y, c, opacity)
		}
	}
}

// Label writes text with its top-left corner at (x, y) over a solid box.
func (a *Annotator) Label(x, y int, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	box := image.Rect(x-1, y-1, x+width+1, y+height+1).Intersect(a.img.Bounds())
	draw.Draw(a.img, box, image.NewUniform(toNRGBA(a.Palette.TextBg)), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  a.img,
		Src:  image.NewUniform(toNRGBA(a.Palette.Text)),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func (a *Annotator) line(p, q image.Point, c colorful.Color, thickness int) {
	dx, dy := abs(q.X-p.X), -abs(q.Y-p.Y)
	sx, sy := 1, 1
	if p.X > q.X {
		sx = -1
	}
	if p.Y > q.Y {
		sy = -1
	}
	err := dx + dy
	x, y := p.X, p.Y
	for {
		a.dot(x, y, c, thickness)
		if x == q.X && y == q.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func (a *Annotator) dot(cx, cy int, c colorful.Color, thickness int) {
	r := thickness / 2
	b := a.img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if !(image.Point{X: x, Y: y}).In(b) {
				continue
			}
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) > r*r+r {
				continue
			}
			a.img.SetNRGBA(x, y, toNRGBA(c))
		}
	}
}

func (a *Annotator) blend(x, y int, c colorful.Color, opacity float64) {
	base, ok := colorful.MakeColor(a.img.NRGBAAt(x, y))
	if !ok {
		a.img.SetNRGBA(x, y, toNRGBA(c))
		return
	}
	a.img.SetNRGBA(x, y, toNRGBA(base.BlendRgb(c, opacity)))
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
