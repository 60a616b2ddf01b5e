package detection

import (
	"errors"
	"testing"

	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
	"github.com/ironsheep/omr-grader/internal/omr"
	"github.com/ironsheep/omr-grader/internal/omrtest"
)

func TestShapeFilter_Boundaries(t *testing.T) {
	const (
		frame = 100000.0
		eps   = 1e-6
	)
	f := DefaultShapeFilter()
	base := Region{
		Area:        500,
		Box:         Box{W: 30, H: 30},
		AspectRatio: 1,
		Circularity: 0.85,
	}
	if reason := f.Reject(base, frame); reason != "" {
		t.Fatalf("base region rejected: %s", reason)
	}

	tests := []struct {
		name   string
		modify func(r *Region)
		accept bool
	}{
		{"area at max fraction", func(r *Region) { r.Area = f.MaxAreaFraction * frame }, true},
		{"area above max fraction", func(r *Region) { r.Area = f.MaxAreaFraction*frame + eps }, false},
		{"area at absolute floor", func(r *Region) { r.Area = f.MinArea }, true},
		{"area below absolute floor", func(r *Region) { r.Area = f.MinArea - eps }, false},
		{"width at min side", func(r *Region) { r.Box.W = f.MinSide }, true},
		{"width below min side", func(r *Region) { r.Box.W = f.MinSide - 1 }, false},
		{"height below min side", func(r *Region) { r.Box.H = f.MinSide - 1 }, false},
		{"aspect at min", func(r *Region) { r.AspectRatio = f.MinAspect }, true},
		{"aspect below min", func(r *Region) { r.AspectRatio = f.MinAspect - eps }, false},
		{"aspect at max", func(r *Region) { r.AspectRatio = f.MaxAspect }, true},
		{"aspect above max", func(r *Region) { r.AspectRatio = f.MaxAspect + eps }, false},
		{"circularity at min", func(r *Region) { r.Circularity = f.MinCircularity }, true},
		{"circularity below min", func(r *Region) { r.Circularity = f.MinCircularity - eps }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.modify(&r)
			if got := f.Accept(r, frame); got != tt.accept {
				t.Errorf("Accept: got %v, want %v (reason %q)", got, tt.accept, f.Reject(r, frame))
			}
		})
	}
}

func TestShapeFilter_AreaFractionFloor(t *testing.T) {
	const frame = 2000000.0
	f := DefaultShapeFilter()
	r := Region{Box: Box{W: 30, H: 30}, AspectRatio: 1, Circularity: 0.9}

	r.Area = f.MinAreaFraction * frame
	if !f.Accept(r, frame) {
		t.Errorf("area exactly at the fractional floor rejected: %s", f.Reject(r, frame))
	}
	r.Area = f.MinAreaFraction*frame - 1e-6
	if f.Accept(r, frame) {
		t.Error("area just below the fractional floor accepted")
	}
}

func defaultSegmenter() SegmenterConfig {
	return SegmenterConfig{
		Thresholder: imgproc.CombinedThreshold{Parts: []imgproc.Thresholder{
			imgproc.AdaptiveThreshold{Method: imgproc.AdaptiveGaussian, BlockSize: 11, Offset: 2},
			imgproc.OtsuThreshold{},
		}},
		CloseRadius: 1,
		OpenRadius:  1,
		Filter:      DefaultShapeFilter(),
		MinBubbles:  5,
	}
}

func TestSegmentBubbles_Grid(t *testing.T) {
	s := omrtest.NewSheet(5, 4)
	s.Fill = omrtest.Marked(0, 1, 2, 3, 0)

	seg, err := SegmentBubbles(s.Render(), defaultSegmenter())
	if err != nil {
		t.Fatalf("SegmentBubbles failed: %v", err)
	}
	if len(seg.Regions) != 20 {
		t.Fatalf("got %d regions, want 20", len(seg.Regions))
	}
	if seg.Candidates < len(seg.Regions) {
		t.Errorf("Candidates %d < accepted %d", seg.Candidates, len(seg.Regions))
	}

	for _, r := range seg.Regions {
		if r.Box.W < 30 || r.Box.W > 36 {
			t.Errorf("region at %+v has width %d, want about 33", r.Center, r.Box.W)
		}
	}
}

func TestSegmentBubbles_RejectsNonBubbles(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	g := s.Render()
	// A ruled line and a block of text-sized specks.
	for x := 5; x < g.Bounds().Dx()-5; x++ {
		g.Pix[10*g.Stride+x] = omrtest.Ink
		g.Pix[11*g.Stride+x] = omrtest.Ink
	}
	for i := 0; i < 4; i++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 3; x++ {
				g.Pix[(20+y)*g.Stride+5+i*6+x] = omrtest.Ink
			}
		}
	}

	seg, err := SegmentBubbles(g, defaultSegmenter())
	if err != nil {
		t.Fatalf("SegmentBubbles failed: %v", err)
	}
	if len(seg.Regions) != 25 {
		t.Errorf("got %d regions, want 25", len(seg.Regions))
	}
}

func TestSegmentBubbles_Insufficient(t *testing.T) {
	s := omrtest.NewSheet(1, 3)
	s.Margin = 150
	seg, err := SegmentBubbles(s.Render(), defaultSegmenter())
	if !errors.Is(err, omr.ErrInsufficientBubbles) {
		t.Fatalf("got %v, want ErrInsufficientBubbles", err)
	}
	if seg == nil || len(seg.Regions) != 3 {
		t.Errorf("the partial segmentation should still report the 3 bubbles found")
	}
}
