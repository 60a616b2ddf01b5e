package grading

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/ironsheep/omr-grader/internal/answerkey"
	"github.com/ironsheep/omr-grader/internal/detection"
	"github.com/ironsheep/omr-grader/internal/omr"
	"github.com/ironsheep/omr-grader/internal/omrtest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGrader(t *testing.T, cfg Config, key *answerkey.Key, opts ...Option) *Grader {
	t.Helper()
	g, err := NewGrader(cfg, key, append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("NewGrader failed: %v", err)
	}
	return g
}

func gradeSheet(t *testing.T, s omrtest.Sheet, key *answerkey.Key) *Result {
	t.Helper()
	res, err := newGrader(t, DefaultConfig(), key).GradeRectified(context.Background(), s.Render())
	if err != nil {
		t.Fatalf("GradeRectified failed: %v", err)
	}
	return res
}

func TestScenarioA_AllCorrect(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(0, 1, 2, 3, 4)

	res := gradeSheet(t, s, answerkey.FromList(0, 1, 2, 3, 4))

	if res.Score != 100 {
		t.Errorf("Score: got %.2f, want 100", res.Score)
	}
	if len(res.Questions) != 5 {
		t.Fatalf("got %d questions, want 5", len(res.Questions))
	}
	for _, q := range res.Questions {
		if !q.IsCorrect {
			t.Errorf("question %d: selected %s, correct %s, want correct", q.Number, q.SelectedLetter, q.CorrectLetter)
		}
		if q.Confidence != 100 {
			t.Errorf("question %d: confidence %.2f, want 100 for a solid mark", q.Number, q.Confidence)
		}
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestScenarioB_OneWrong(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(0, 1, 2, 3, 0)

	res := gradeSheet(t, s, answerkey.FromList(0, 1, 2, 3, 4))

	if math.Abs(res.Score-80) > 1e-9 {
		t.Errorf("Score: got %.2f, want 80", res.Score)
	}
	var wrong []QuestionResult
	for _, q := range res.Questions {
		if !q.IsCorrect {
			wrong = append(wrong, q)
		}
	}
	if len(wrong) != 1 {
		t.Fatalf("got %d incorrect questions, want 1", len(wrong))
	}
	q := wrong[0]
	if q.Number != 5 || q.SelectedLetter != "A" || q.CorrectLetter != "E" {
		t.Errorf("incorrect question: got #%d selected %s correct %s, want #5 A/E", q.Number, q.SelectedLetter, q.CorrectLetter)
	}
}

func TestScenarioC_BlankPage(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 320, 360))
	for i := range blank.Pix {
		blank.Pix[i] = omrtest.Paper
	}

	var stages []omr.Stage
	g := newGrader(t, DefaultConfig(), answerkey.FromList(0, 1, 2, 3, 4),
		WithProgress(func(s omr.Stage) { stages = append(stages, s) }))
	res, err := g.GradeRectified(context.Background(), blank)

	if !errors.Is(err, omr.ErrInsufficientBubbles) {
		t.Fatalf("got %v, want ErrInsufficientBubbles", err)
	}
	if res != nil {
		t.Error("a failed run must not return a result")
	}
	var se *omr.StageError
	if !errors.As(err, &se) || se.Stage != omr.StageSegmenting {
		t.Errorf("want a StageError at segmenting, got %v", err)
	}
	if stages[len(stages)-1] != omr.StageFailed {
		t.Errorf("last stage: got %v, want failed", stages[len(stages)-1])
	}
}

func TestScenarioD_UnkeyedQuestion(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(0, 1, 2, 0, 4)
	key := answerkey.New(map[int]int{0: 0, 1: 1, 2: 2, 4: 4}, 5)

	res := gradeSheet(t, s, key)

	if res.Scored != 4 {
		t.Errorf("Scored: got %d, want 4", res.Scored)
	}
	if res.Score != 100 {
		t.Errorf("Score: got %.2f, want 100 over the 4 keyed questions", res.Score)
	}
	q := res.Questions[3]
	if q.Keyed() || q.IsCorrect || q.CorrectLetter != NoAnswer {
		t.Errorf("question 4 should be unkeyed, got %+v", q)
	}
	if q.SelectedLetter != "A" {
		t.Errorf("question 4 selection: got %s, want A", q.SelectedLetter)
	}
}

func TestGrade_Idempotent(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(4, 3, -1, 1, 0)
	img := s.Render()
	g := newGrader(t, DefaultConfig(), answerkey.FromList(4, 3, 2, 1, 0))

	first, err := g.GradeRectified(context.Background(), img)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := g.GradeRectified(context.Background(), img)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if !reflect.DeepEqual(first.Questions, second.Questions) {
		t.Error("question results differ between runs")
	}
	if first.Score != second.Score || first.Correct != second.Correct {
		t.Errorf("scores differ: %.2f vs %.2f", first.Score, second.Score)
	}
	if !reflect.DeepEqual(first.Annotated.Pix, second.Annotated.Pix) {
		t.Error("annotated images differ between runs")
	}
	if first.Questions[2].Selected != nil {
		t.Errorf("blank question 3 selected %s", first.Questions[2].SelectedLetter)
	}
}

func TestFill_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	segCfg, err := cfg.Segmenter()
	if err != nil {
		t.Fatalf("Segmenter failed: %v", err)
	}

	prev := FillMetrics{}
	markedAt := -1.0
	for i, f := range []float64{0, 0.15, 0.3, 0.5, 0.7, 0.85, 1} {
		s := omrtest.NewSheet(5, 5)
		s.Fill = func(q, o int) float64 {
			if q == 2 && o == 2 {
				return f
			}
			return 0
		}
		seg, err := detection.SegmentBubbles(s.Render(), segCfg)
		if err != nil {
			t.Fatalf("fill %.2f: SegmentBubbles failed: %v", f, err)
		}
		r, ok := regionAt(seg.Regions, s.Center(2, 2))
		if !ok {
			t.Fatalf("fill %.2f: bubble (2,2) not found", f)
		}
		m := MeasureFill(r, seg.Mask)

		if i > 0 && (m.MarkedPixels < prev.MarkedPixels || m.FillRatio < prev.FillRatio || m.Density < prev.Density) {
			t.Errorf("fill %.2f: metrics %+v dropped below %+v", f, m, prev)
		}
		prev = m

		marked := cfg.Mark.Marked(m)
		if markedAt >= 0 && !marked {
			t.Errorf("fill %.2f: unmarked although fill %.2f was marked: %+v", f, markedAt, m)
		}
		if marked && markedAt < 0 {
			markedAt = f
		}
		if f == 0 && marked {
			t.Errorf("empty bubble reported marked: %+v", m)
		}
		if f == 1 && !marked {
			t.Errorf("solid bubble reported unmarked: %+v", m)
		}
	}
}

func regionAt(regions []detection.Region, c image.Point) (detection.Region, bool) {
	for _, r := range regions {
		if c.In(r.Box.Rect()) {
			return r, true
		}
	}
	return detection.Region{}, false
}

func TestGrade_AmbiguousMarks(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = func(q, o int) float64 {
		switch {
		case q == 0 && (o == 1 || o == 3):
			return 1
		case q > 0 && o == q:
			return 1
		}
		return 0
	}
	key := answerkey.FromList(1, 1, 2, 3, 4)

	res := gradeSheet(t, s, key)
	q := res.Questions[0]
	if !q.Ambiguous || q.SelectedLetter != "B" || !q.IsCorrect {
		t.Errorf("highest confidence: got ambiguous=%v selected=%s correct=%v, want true/B/true", q.Ambiguous, q.SelectedLetter, q.IsCorrect)
	}
	if !reflect.DeepEqual(q.Marked, []bool{false, true, false, true, false}) {
		t.Errorf("Marked: got %v", q.Marked)
	}

	cfg := DefaultConfig()
	cfg.Ambiguity = FlagAmbiguous
	res, err := newGrader(t, cfg, key).GradeRectified(context.Background(), s.Render())
	if err != nil {
		t.Fatalf("GradeRectified failed: %v", err)
	}
	q = res.Questions[0]
	if q.Selected != nil || q.Error != ErrMultipleMarks || q.IsCorrect {
		t.Errorf("flag ambiguous: got selected=%s error=%q", q.SelectedLetter, q.Error)
	}
	if res.Correct != 4 || res.Scored != 5 {
		t.Errorf("got %d/%d, want 4/5", res.Correct, res.Scored)
	}
}

func TestGrade_IncompleteGroup(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(0, 1, 2, 3, 4)
	img := s.Render()
	// Erase the last two bubbles of the final row.
	for _, o := range []int{3, 4} {
		c := s.Center(4, o)
		for y := c.Y - s.Radius - 1; y <= c.Y+s.Radius+1; y++ {
			for x := c.X - s.Radius - 1; x <= c.X+s.Radius+1; x++ {
				img.Pix[y*img.Stride+x] = omrtest.Paper
			}
		}
	}

	res, err := newGrader(t, DefaultConfig(), answerkey.FromList(0, 1, 2, 3, 4)).GradeRectified(context.Background(), img)
	if err != nil {
		t.Fatalf("GradeRectified failed: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "found 23") {
		t.Errorf("Warnings: got %v, want a count mismatch for 23 bubbles", res.Warnings)
	}
	last := res.Questions[4]
	if last.Error != omr.ErrIncompleteQuestionGroup.Error() || last.Selected != nil {
		t.Errorf("last question: got error %q selected %v", last.Error, last.Selected)
	}
	if len(last.Regions) != 3 {
		t.Errorf("last question kept %d regions, want 3", len(last.Regions))
	}
	if res.Correct != 4 || math.Abs(res.Score-80) > 1e-9 {
		t.Errorf("got %d correct, score %.2f, want 4 and 80", res.Correct, res.Score)
	}
}

func TestGrade_Photo(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(2, 0, 4, 1, 3)
	photo := omrtest.Photo(s.Render(), 420, 460, [4]image.Point{{55, 45}, {370, 52}, {365, 410}, {50, 400}})

	var stages []omr.Stage
	g := newGrader(t, DefaultConfig(), answerkey.FromList(2, 0, 4, 1, 3),
		WithProgress(func(st omr.Stage) { stages = append(stages, st) }))
	res, err := g.Grade(context.Background(), photo)
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if res.Score != 100 {
		for _, q := range res.Questions {
			t.Logf("Q%d: selected %s correct %s fill %+v", q.Number, q.SelectedLetter, q.CorrectLetter, q.Fill)
		}
		t.Errorf("Score: got %.2f, want 100", res.Score)
	}

	want := []omr.Stage{omr.StageLocatingDocument, omr.StageNormalizing, omr.StageSegmenting, omr.StageAnalyzing, omr.StageScored}
	if !reflect.DeepEqual(stages, want) {
		t.Errorf("stages: got %v, want %v", stages, want)
	}
	if res.Annotated == nil || res.Annotated.Bounds() != res.Sheet.Bounds() {
		t.Error("annotated image missing or not sheet-sized")
	}
}

func TestGrade_DocumentNotFound(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range flat.Pix {
		flat.Pix[i] = omrtest.Background
	}
	_, err := newGrader(t, DefaultConfig(), nil).Grade(context.Background(), flat)
	if !errors.Is(err, omr.ErrDocumentNotFound) {
		t.Fatalf("got %v, want ErrDocumentNotFound", err)
	}
	var se *omr.StageError
	if !errors.As(err, &se) || se.Stage != omr.StageLocatingDocument {
		t.Errorf("want a StageError at locating_document, got %v", err)
	}
}

func TestGrade_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newGrader(t, DefaultConfig(), nil).Grade(ctx, image.NewGray(image.Rect(0, 0, 10, 10)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestGrade_NoKey(t *testing.T) {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(0, 1, 2, 3, 4)
	res := gradeSheet(t, s, nil)

	if len(res.Questions) != 5 {
		t.Errorf("question count from detected bubbles: got %d, want 5", len(res.Questions))
	}
	if res.Score != 0 || res.Scored != 0 {
		t.Errorf("got score %.2f over %d, want 0 over 0", res.Score, res.Scored)
	}
	if res.Questions[2].SelectedLetter != "C" {
		t.Errorf("question 3 selection: got %s, want C", res.Questions[2].SelectedLetter)
	}
}
