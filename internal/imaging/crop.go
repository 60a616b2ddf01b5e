package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Crop extracts r from img and optionally rescales it.
//
// The rectangle is first grown by pad pixels on every side and clipped to
// the image, so a crop around a bubble row keeps some context. A scale of 0
// or 1 keeps the cropped size.
//
// The result is a new zero-origin image; img is not modified.
func Crop(img image.Image, r image.Rectangle, pad int, scale float64) (*image.NRGBA, error) {
	bounds := img.Bounds()
	clipped := r.Inset(-pad).Intersect(bounds)
	if clipped.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", r, bounds)
	}
	r = clipped

	cropped := imaging.Crop(img, r)
	if scale > 0 && scale != 1.0 {
		w := int(float64(cropped.Bounds().Dx()) * scale)
		h := int(float64(cropped.Bounds().Dy()) * scale)
		if w < 1 || h < 1 {
			return nil, fmt.Errorf("scale %g collapses a %dx%d crop", scale, r.Dx(), r.Dy())
		}
		cropped = imaging.Resize(cropped, w, h, imaging.Lanczos)
	}
	return cropped, nil
}
