// Package detection finds the answer sheet in a photo, rectifies it, and
// extracts bubble candidates from the rectified sheet.
//
// The three stages map onto three entry points:
//
//   - LocateDocument: edge map, outer contours and polygon approximation
//     yield the four corners of the sheet
//   - Rectify: the corners are ordered and the sheet is warped to a
//     fronto-parallel frame sized from its edge lengths
//   - SegmentBubbles: the rectified sheet is binarized and cleaned, and
//     outer contours that pass a ShapeFilter become Regions
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Locator corners are relative to the source image's Bounds().Min. Regions
// are in the rectified frame, which always starts at (0,0).
//
// # Contours
//
// Contours are traced on binary masks in the manner of an external-only
// contour retrieval: one closed boundary per outermost 8-connected shape.
// Area is the shoelace area of the polygon through the boundary pixel
// centres, so a filled 10x10 square measures 81, not 100.
//
// # Limitations
//
// The locator expects a light sheet on a darker surface with all four edges
// visible. Sheets that run off the frame, or that blend into the surface,
// yield omr.ErrDocumentNotFound.
package detection
