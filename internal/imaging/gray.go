package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/disintegration/imaging"
)

// ToGray converts any image to an 8-bit intensity raster whose bounds start
// at (0,0). Every raster produced inside the pipeline follows that origin
// convention, so pixel loops can index Pix directly.
//
// Color input is weighted 0.3 red, 0.6 green and 0.1 blue, bild's default
// grayscale weights rather than Rec.601 luma.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		out := image.NewGray(g.Bounds())
		copy(out.Pix, g.Pix)
		return out
	}
	if img.Bounds().Min != (image.Point{}) {
		img = imaging.Clone(img)
	}
	return rgbaToGray(effect.Grayscale(img))
}

// Histogram returns the 256-bin intensity histogram of a gray raster.
func Histogram(g *image.Gray) [256]int {
	var bins [256]int
	h := histogram.NewRGBAHistogram(g)
	copy(bins[:], h.R.Bins)
	return bins
}

// EqualizeHist spreads the intensity histogram over the full 0-255 range to
// boost contrast, using the cumulative distribution as a lookup table.
//
// A raster with a single intensity is returned unchanged (as a copy).
func EqualizeHist(g *image.Gray) *image.Gray {
	bins := Histogram(g)
	total := len(g.Pix)

	cdfMin := 0
	for _, n := range bins {
		if n > 0 {
			cdfMin = n
			break
		}
	}

	out := image.NewGray(g.Bounds())
	if total == cdfMin {
		copy(out.Pix, g.Pix)
		return out
	}

	var lut [256]uint8
	cdf := 0
	scale := 255.0 / float64(total-cdfMin)
	for i, n := range bins {
		cdf += n
		v := math.Round(float64(cdf-cdfMin) * scale)
		lut[i] = uint8(clamp(int(v), 0, 255))
	}
	for i, p := range g.Pix {
		out.Pix[i] = lut[p]
	}
	return out
}

// GaussianBlur smooths a gray raster. A radius of 2 gives the 5x5 kernel
// used ahead of edge detection.
func GaussianBlur(g *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return ToGray(g)
	}
	return rgbaToGray(blur.Gaussian(g, radius))
}

// BoxBlur replaces every pixel by the unweighted mean of the
// (2*radius+1)² window around it.
func BoxBlur(g *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return ToGray(g)
	}
	return rgbaToGray(blur.Box(g, radius))
}

// rgbaToGray copies the red channel of a bild result into a zero-origin gray
// raster. bild hands back RGBA even for gray input, with equal channels.
func rgbaToGray(src *image.RGBA) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = row[x*4]
		}
	}
	return out
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
