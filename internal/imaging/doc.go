// Package imaging provides the raster operations the grading pipeline is
// built from: decoding, grayscale conversion, contrast equalization,
// smoothing, Canny edges, thresholding, morphology, perspective warping and
// annotation.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For rectangles, Min is inclusive and Max is exclusive
//
// Every *image.Gray produced here has its bounds anchored at (0,0) and a
// stride equal to its width, so callers may index Pix as y*width+x.
//
// # Masks
//
// Binary masks are *image.Gray rasters holding only 0 and 255. Ink (pencil
// marks, printed outlines, edges) is 255.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. All other functions are
// pure: they never modify their inputs and can run concurrently on the
// same source image.
package imaging
