package imaging

import (
	"fmt"
	"image"
	"math"
)

// Thresholder turns an intensity raster into a binary mask in which dark
// ink (pencil marks, printed bubble outlines) is 255 and paper is 0.
//
// Implementations are stateless and safe for concurrent use.
type Thresholder interface {
	Threshold(g *image.Gray) *image.Gray
	Name() string
}

// AdaptiveMethod selects how the local reference level is computed.
type AdaptiveMethod string

const (
	AdaptiveMean     AdaptiveMethod = "mean"
	AdaptiveGaussian AdaptiveMethod = "gaussian"
)

// AdaptiveThreshold marks a pixel when it is darker than its neighbourhood
// average by more than Offset. Comparing against a local level instead of a
// global one keeps marks visible under uneven lighting across the sheet.
type AdaptiveThreshold struct {
	Method AdaptiveMethod `yaml:"method" json:"method"`

	// BlockSize is the odd side length of the neighbourhood window.
	BlockSize int `yaml:"block_size" json:"block_size"`

	// Offset is subtracted from the local level before comparison.
	Offset float64 `yaml:"offset" json:"offset"`
}

func (a AdaptiveThreshold) Name() string {
	return fmt.Sprintf("adaptive-%s(%d,%g)", a.Method, a.BlockSize, a.Offset)
}

// Threshold applies the adaptive rule: mask = 255 where src <= local - Offset.
func (a AdaptiveThreshold) Threshold(g *image.Gray) *image.Gray {
	block := a.BlockSize
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}

	var local []float64
	switch a.Method {
	case AdaptiveMean:
		// bild's box kernel spans ceil(2r+1) pixels, so r = (block-1)/2
		// reproduces the block window exactly.
		mean := BoxBlur(g, float64(block-1)/2)
		local = make([]float64, len(mean.Pix))
		for i, p := range mean.Pix {
			local[i] = float64(p)
		}
	default:
		local = gaussianLocalMean(g, block)
	}

	out := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		if float64(p) <= local[i]-a.Offset {
			out.Pix[i] = 255
		}
	}
	return out
}

// gaussianLocalMean computes a Gaussian-weighted mean over a block×block
// window with a separable kernel. Sigma follows the usual derivation from
// the window size, 0.3*((block-1)/2 - 1) + 0.8, and borders replicate the
// edge pixels.
func gaussianLocalMean(g *image.Gray, block int) []float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	r := block / 2
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8

	kernel := make([]float64, block)
	var sum float64
	for i := range kernel {
		d := float64(i - r)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for k := -r; k <= r; k++ {
				acc += float64(row[clamp(x+k, 0, w-1)]) * kernel[k+r]
			}
			tmp[y*w+x] = acc
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -r; k <= r; k++ {
				acc += tmp[clamp(y+k, 0, h-1)*w+x] * kernel[k+r]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// OtsuThreshold binarizes with a single global level chosen by Otsu's
// method. Solid pencil fills survive it intact where an adaptive threshold
// would hollow out their interior.
type OtsuThreshold struct{}

func (OtsuThreshold) Name() string { return "otsu" }

func (OtsuThreshold) Threshold(g *image.Gray) *image.Gray {
	return ThresholdInv(g, OtsuLevel(g))
}

// CombinedThreshold ORs the masks of several thresholders, recovering
// bubbles that any single method misses.
type CombinedThreshold struct {
	Parts []Thresholder
}

func (c CombinedThreshold) Name() string {
	name := "or("
	for i, p := range c.Parts {
		if i > 0 {
			name += ","
		}
		name += p.Name()
	}
	return name + ")"
}

func (c CombinedThreshold) Threshold(g *image.Gray) *image.Gray {
	out := image.NewGray(g.Bounds())
	for _, p := range c.Parts {
		Or(out, p.Threshold(g))
	}
	return out
}

// OtsuLevel returns the intensity that maximises the between-class
// variance of the histogram. Pixels at or below the level form the dark
// class.
func OtsuLevel(g *image.Gray) uint8 {
	bins := Histogram(g)
	total := 0
	var sumAll float64
	for i, n := range bins {
		total += n
		sumAll += float64(i * n)
	}
	if total == 0 {
		return 0
	}

	var sumB float64
	weightB := 0
	bestVar := -1.0
	best := 0
	for t := 0; t < 256; t++ {
		weightB += bins[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * bins[t])
		meanB := sumB / float64(weightB)
		meanF := (sumAll - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > bestVar {
			bestVar = between
			best = t
		}
	}
	return uint8(best)
}

// ThresholdInv returns a mask that is 255 where g <= level.
//
// bild's segment.Threshold ranks pixels through a float luminance that
// truncates some exact gray values down by one, so the comparison is done
// on the raw intensities here.
func ThresholdInv(g *image.Gray, level uint8) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		if p <= level {
			out.Pix[i] = 255
		}
	}
	return out
}

// Or sets dst to dst OR src. Both masks must share bounds.
func Or(dst, src *image.Gray) {
	for i, p := range src.Pix {
		if p != 0 {
			dst.Pix[i] = 255
		}
	}
}

// CountNonZero returns the number of set pixels in a mask.
func CountNonZero(m *image.Gray) int {
	n := 0
	for _, p := range m.Pix {
		if p != 0 {
			n++
		}
	}
	return n
}
