package grading

import (
	"image"

	"github.com/ironsheep/omr-grader/internal/answerkey"
	"github.com/ironsheep/omr-grader/internal/detection"
	"github.com/ironsheep/omr-grader/internal/omr"
)

// NoAnswer is the letter shown for a missing selection or key entry.
const NoAnswer = "N/A"

// QuestionResult is the outcome of one question.
type QuestionResult struct {
	// Number is the 1-based question number.
	Number int `json:"number"`

	// Selected is the chosen option index, nil when nothing was marked,
	// the marks were ambiguous under FlagAmbiguous, or the group was
	// incomplete.
	Selected *int `json:"selected"`

	// Correct is the keyed option, nil when the question is not keyed.
	Correct *int `json:"correct"`

	IsCorrect  bool    `json:"is_correct"`
	Confidence float64 `json:"confidence"`

	SelectedLetter string `json:"selected_letter"`
	CorrectLetter  string `json:"correct_letter"`

	// Error tags a question that could not be read normally.
	Error string `json:"error,omitempty"`

	Ambiguous bool `json:"ambiguous,omitempty"`

	// Marked and Fill are per option, left to right.
	Marked []bool        `json:"marked,omitempty"`
	Fill   []FillMetrics `json:"fill,omitempty"`

	// Regions are the question's bubbles, left to right.
	Regions []detection.Region `json:"-"`
}

// Keyed reports whether the question counts towards the score.
func (q QuestionResult) Keyed() bool {
	return q.Correct != nil
}

// Result is the outcome of grading one sheet.
type Result struct {
	Questions []QuestionResult `json:"questions"`

	// Correct counts correct answers; Scored counts keyed questions.
	Correct int `json:"correct"`
	Scored  int `json:"scored"`

	// Score is Correct / Scored × 100, or 0 when nothing is keyed.
	Score float64 `json:"score"`

	Warnings []string `json:"warnings,omitempty"`

	// Quad is the sheet outline in the source photo.
	Quad detection.Quadrilateral `json:"quad"`

	// Regions are every bubble the segmenter accepted.
	Regions []detection.Region `json:"-"`

	Sheet     *detection.RectifiedSheet `json:"-"`
	Mask      *image.Gray               `json:"-"`
	Annotated *image.NRGBA              `json:"-"`
}

// ScoreGroups grades partitioned bubble groups against key.
//
// Incomplete groups yield a result with no selection and the
// omr.ErrIncompleteQuestionGroup tag. Complete groups are measured with
// MeasureFill and resolved with Resolve.
func ScoreGroups(groups []Group, mask *image.Gray, key *answerkey.Key, policy MarkPolicy, ambiguity AmbiguityPolicy) *Result {
	res := &Result{Questions: make([]QuestionResult, 0, len(groups))}
	for q, g := range groups {
		qr := QuestionResult{
			Number:         q + 1,
			SelectedLetter: NoAnswer,
			CorrectLetter:  NoAnswer,
			Regions:        g.Regions,
		}
		if o, ok := key.Answer(q); ok {
			qr.Correct = &o
			qr.CorrectLetter = answerkey.Letter(o)
		}

		if !g.Complete {
			qr.Error = omr.ErrIncompleteQuestionGroup.Error()
		} else {
			qr.Fill = make([]FillMetrics, len(g.Regions))
			for i, r := range g.Regions {
				qr.Fill[i] = MeasureFill(r, mask)
			}
			dec := Resolve(qr.Fill, policy, ambiguity)
			qr.Marked = dec.Marked
			qr.Ambiguous = dec.Ambiguous
			qr.Confidence = dec.Confidence
			if dec.Selected >= 0 {
				sel := dec.Selected
				qr.Selected = &sel
				qr.SelectedLetter = answerkey.Letter(sel)
			} else if dec.Ambiguous {
				qr.Error = ErrMultipleMarks
			}
		}

		if qr.Keyed() {
			res.Scored++
			if qr.Selected != nil && *qr.Selected == *qr.Correct {
				qr.IsCorrect = true
				res.Correct++
			}
		}
		res.Questions = append(res.Questions, qr)
	}

	if res.Scored > 0 {
		res.Score = float64(res.Correct) / float64(res.Scored) * 100
	}
	return res
}
