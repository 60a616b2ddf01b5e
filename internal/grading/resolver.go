package grading

import "fmt"

// MarkPolicy decides whether a bubble is filled.
type MarkPolicy interface {
	Marked(m FillMetrics) bool
}

// MajorityPolicy marks a bubble when at least Required of three signals
// pass: MarkedPixels above MinPixels, FillRatio above MinFillRatio and
// Density above MinDensity. Each comparison is strict.
type MajorityPolicy struct {
	MinPixels    int     `yaml:"min_pixels" json:"min_pixels"`
	MinFillRatio float64 `yaml:"min_fill_ratio" json:"min_fill_ratio"`
	MinDensity   float64 `yaml:"min_density" json:"min_density"`
	Required     int     `yaml:"required" json:"required"`
}

// DefaultMajorityPolicy returns the two-of-three rule with the thresholds
// tuned for 30-40 px bubbles.
func DefaultMajorityPolicy() MajorityPolicy {
	return MajorityPolicy{MinPixels: 500, MinFillRatio: 0.3, MinDensity: 0.4, Required: 2}
}

// Votes returns how many of the three signals pass.
func (p MajorityPolicy) Votes(m FillMetrics) int {
	votes := 0
	if m.MarkedPixels > p.MinPixels {
		votes++
	}
	if m.FillRatio > p.MinFillRatio {
		votes++
	}
	if m.Density > p.MinDensity {
		votes++
	}
	return votes
}

func (p MajorityPolicy) Marked(m FillMetrics) bool {
	return p.Votes(m) >= p.Required
}

// AmbiguityPolicy says what to do when more than one option of a question
// is marked.
type AmbiguityPolicy string

const (
	// HighestConfidence selects the marked option with the largest
	// confidence; ties go to the leftmost.
	HighestConfidence AmbiguityPolicy = "highest_confidence"

	// FlagAmbiguous selects nothing and tags the question.
	FlagAmbiguous AmbiguityPolicy = "flag"
)

// ErrMultipleMarks is the question tag used by FlagAmbiguous.
const ErrMultipleMarks = "multiple marks"

func (a AmbiguityPolicy) validate() error {
	switch a {
	case HighestConfidence, FlagAmbiguous:
		return nil
	}
	return fmt.Errorf("unknown ambiguity policy %q (want %q or %q)", a, HighestConfidence, FlagAmbiguous)
}

// Resolution is the decision for one question.
type Resolution struct {
	// Selected is the chosen option, or -1.
	Selected int

	// Confidence is the selected option's confidence, 0 when none.
	Confidence float64

	Marked    []bool
	Ambiguous bool
}

// Resolve picks the answer of one question from its options' fill
// metrics, listed left to right.
func Resolve(fills []FillMetrics, policy MarkPolicy, ambiguity AmbiguityPolicy) Resolution {
	res := Resolution{Selected: -1, Marked: make([]bool, len(fills))}
	count := 0
	for i, m := range fills {
		if !policy.Marked(m) {
			continue
		}
		res.Marked[i] = true
		count++
		if c := m.Confidence(); res.Selected < 0 || c > res.Confidence {
			res.Selected, res.Confidence = i, c
		}
	}

	if count > 1 {
		res.Ambiguous = true
		if ambiguity == FlagAmbiguous {
			res.Selected, res.Confidence = -1, 0
		}
	}
	return res
}
