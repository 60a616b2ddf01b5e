// Package grading turns a photo of an answer sheet into a score.
//
// A Grader chains the stages of one run:
//
//	idle → locating_document → normalizing → segmenting → analyzing → scored
//
// and stops at the first fatal failure with an *omr.StageError. A Grader is
// immutable after NewGrader and safe for concurrent use; batch runs share
// one Grader across workers.
package grading

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/ironsheep/omr-grader/internal/answerkey"
	"github.com/ironsheep/omr-grader/internal/detection"
	"github.com/ironsheep/omr-grader/internal/omr"
)

// Grader grades sheets against one answer key.
type Grader struct {
	cfg       Config
	key       *answerkey.Key
	segmenter detection.SegmenterConfig
	logger    *slog.Logger
	progress  func(omr.Stage)
}

// Option customizes a Grader.
type Option func(*Grader)

// WithLogger sets the logger for stage transitions and warnings.
func WithLogger(l *slog.Logger) Option {
	return func(g *Grader) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithProgress registers a callback invoked on every stage transition. It
// is called from the goroutine running Grade.
func WithProgress(fn func(omr.Stage)) Option {
	return func(g *Grader) { g.progress = fn }
}

// NewGrader validates cfg and binds it to key. A nil key grades without
// scoring: every question is unkeyed.
func NewGrader(cfg Config, key *answerkey.Key, opts ...Option) (*Grader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grading config: %w", err)
	}
	seg, err := cfg.Segmenter()
	if err != nil {
		return nil, fmt.Errorf("invalid grading config: %w", err)
	}
	if key == nil {
		key = answerkey.New(nil, 0)
	}

	g := &Grader{
		cfg:       cfg,
		key:       key,
		segmenter: seg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns a copy of the grader's configuration.
func (g *Grader) Config() Config {
	return g.cfg
}

// Key returns the answer key.
func (g *Grader) Key() *answerkey.Key {
	return g.key
}

// Grade runs the full pipeline on a photo or scan.
//
// Parameters:
//   - ctx: Checked between stages; a cancelled context fails the run at
//     the next stage boundary.
//   - img: The source image, any bounds.
//
// Returns the graded result, or an *omr.StageError wrapping
// omr.ErrDocumentNotFound or omr.ErrInsufficientBubbles. No partial result
// is returned on failure.
func (g *Grader) Grade(ctx context.Context, img image.Image) (*Result, error) {
	g.enter(omr.StageLocatingDocument)
	if err := ctx.Err(); err != nil {
		return nil, g.fail(omr.StageLocatingDocument, err)
	}
	quad, err := detection.LocateDocument(img, g.cfg.Locator)
	if err != nil {
		return nil, g.fail(omr.StageLocatingDocument, err)
	}
	g.logger.Debug("sheet located", "corners", quad)

	g.enter(omr.StageNormalizing)
	if err := ctx.Err(); err != nil {
		return nil, g.fail(omr.StageNormalizing, err)
	}
	sheet, err := detection.Rectify(img, quad)
	if err != nil {
		return nil, g.fail(omr.StageNormalizing, err)
	}
	g.logger.Debug("sheet rectified", "width", sheet.Bounds().Dx(), "height", sheet.Bounds().Dy())

	return g.gradeSheet(ctx, sheet)
}

// GradeRectified grades an image that already shows the sheet
// fronto-parallel and edge to edge, skipping document location.
func (g *Grader) GradeRectified(ctx context.Context, img image.Image) (*Result, error) {
	g.enter(omr.StageNormalizing)
	return g.gradeSheet(ctx, detection.FullFrame(img))
}

func (g *Grader) gradeSheet(ctx context.Context, sheet *detection.RectifiedSheet) (*Result, error) {
	g.enter(omr.StageSegmenting)
	if err := ctx.Err(); err != nil {
		return nil, g.fail(omr.StageSegmenting, err)
	}
	seg, err := detection.SegmentBubbles(sheet.Gray, g.segmenter)
	if err != nil {
		return nil, g.fail(omr.StageSegmenting, err)
	}
	g.logger.Debug("bubbles segmented",
		"candidates", seg.Candidates,
		"accepted", len(seg.Regions),
		"ink", fmt.Sprintf("%.3f", MaskCoverage(seg.Mask)),
		"thresholder", g.segmenter.Thresholder.Name())

	g.enter(omr.StageAnalyzing)
	if err := ctx.Err(); err != nil {
		return nil, g.fail(omr.StageAnalyzing, err)
	}
	questions := QuestionCount(g.cfg.Questions, g.key.Total(), len(seg.Regions), g.cfg.Options)
	groups, warning := Partition(seg.Regions, questions, g.cfg.Options)

	res := ScoreGroups(groups, seg.Mask, g.key, g.cfg.Mark, g.cfg.Ambiguity)
	if warning != "" {
		g.logger.Warn("bubble count mismatch", "detail", warning)
		res.Warnings = append(res.Warnings, warning)
	}
	res.Quad = sheet.Corners
	res.Regions = seg.Regions
	res.Sheet = sheet
	res.Mask = seg.Mask
	res.Annotated = Annotate(sheet, res)

	g.enter(omr.StageScored)
	g.logger.Debug("sheet scored", "correct", res.Correct, "scored", res.Scored, "score", res.Score)
	return res, nil
}

func (g *Grader) enter(s omr.Stage) {
	g.logger.Debug("stage", "stage", s.String())
	if g.progress != nil {
		g.progress(s)
	}
}

func (g *Grader) fail(s omr.Stage, err error) error {
	g.logger.Debug("stage failed", "stage", s.String(), "error", err)
	if g.progress != nil {
		g.progress(omr.StageFailed)
	}
	return omr.FailedAt(s, err)
}
