package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
)

// Dilate grows the set pixels of a mask by a disc of the given radius.
func Dilate(m *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return ToGray(m)
	}
	return binarize(effect.Dilate(m, radius))
}

// Erode shrinks the set pixels of a mask by a disc of the given radius.
func Erode(m *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return ToGray(m)
	}
	return binarize(effect.Erode(m, radius))
}

// Close (dilate then erode) fills small gaps in pencil strokes.
func Close(m *image.Gray, radius float64) *image.Gray {
	return Erode(Dilate(m, radius), radius)
}

// Open (erode then dilate) removes speckle smaller than the structuring
// element.
func Open(m *image.Gray, radius float64) *image.Gray {
	return Dilate(Erode(m, radius), radius)
}

// binarize snaps a morphology result back to a strict 0/255 mask.
func binarize(img *image.RGBA) *image.Gray {
	g := rgbaToGray(img)
	for i, p := range g.Pix {
		if p >= 128 {
			g.Pix[i] = 255
		} else {
			g.Pix[i] = 0
		}
	}
	return g
}
