// Package omr holds the error taxonomy and run stages shared by every part
// of the grading pipeline.
//
// Fatal pipeline failures are reported as *StageError values that wrap one
// of the sentinel errors below, so callers can branch with errors.Is:
//
//	res, err := grader.Grade(img)
//	if errors.Is(err, omr.ErrDocumentNotFound) {
//	    // ask for a better photo
//	}
package omr

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound is returned when no quadrilateral large enough to
	// be the answer sheet can be found in the photo.
	ErrDocumentNotFound = errors.New("answer sheet boundary not found")

	// ErrInsufficientBubbles is returned when segmentation yields fewer
	// bubbles than the configured minimum.
	ErrInsufficientBubbles = errors.New("not enough bubbles detected")

	// ErrIncompleteQuestionGroup tags a question whose bubble group had
	// fewer regions than options. It is recorded per question and never
	// aborts a run.
	ErrIncompleteQuestionGroup = errors.New("incomplete bubble set")

	// ErrKeyLoad is returned when an answer key is unreadable or malformed.
	ErrKeyLoad = errors.New("answer key load failed")

	// ErrImageLoad is returned when an input image cannot be opened or decoded.
	ErrImageLoad = errors.New("image load failed")
)

// Stage identifies a step of a single grading run.
type Stage int

const (
	StageIdle Stage = iota
	StageLocatingDocument
	StageNormalizing
	StageSegmenting
	StageAnalyzing
	StageScored
	StageFailed
)

var stageNames = [...]string{
	StageIdle:             "idle",
	StageLocatingDocument: "locating_document",
	StageNormalizing:      "normalizing",
	StageSegmenting:       "segmenting",
	StageAnalyzing:        "analyzing",
	StageScored:           "scored",
	StageFailed:           "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError reports the stage at which a grading run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedAt wraps err with the stage it occurred in. A nil err yields nil.
func FailedAt(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
