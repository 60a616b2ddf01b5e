// Package report renders grading results as text.
//
// Output depends only on its inputs: no timestamps, no map iteration, and
// fixed two-decimal percentages, so the same result always produces the
// same bytes.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ironsheep/omr-grader/internal/grading"
)

// WriteReport writes the per-sheet grading report.
//
// Layout:
//
//	GRADING REPORT
//	==============
//	File: scan-01
//	Total questions: 5
//	Score: 80.00%
//
//	SUMMARY: 4/5 correct
//
//	DETAIL
//	------
//	Q1: selected B, correct B - CORRECT (confidence: 100.00%)
//	...
//
// A WARNINGS section follows when the result carries any.
func WriteReport(w io.Writer, name string, res *grading.Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "GRADING REPORT")
	fmt.Fprintln(bw, "==============")
	fmt.Fprintf(bw, "File: %s\n", name)
	fmt.Fprintf(bw, "Total questions: %d\n", len(res.Questions))
	fmt.Fprintf(bw, "Score: %s\n", Percent(res.Score))
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "SUMMARY: %s\n", Summary(res))
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "DETAIL")
	fmt.Fprintln(bw, "------")
	for _, q := range res.Questions {
		fmt.Fprintln(bw, DetailLine(q))
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "WARNINGS")
		fmt.Fprintln(bw, "--------")
		for _, warn := range res.Warnings {
			fmt.Fprintf(bw, "- %s\n", warn)
		}
	}
	return bw.Flush()
}

// Summary returns "N/M correct" where M counts keyed questions.
func Summary(res *grading.Result) string {
	return fmt.Sprintf("%d/%d correct", res.Correct, res.Scored)
}

// Percent formats a 0-100 value with two decimals.
func Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// DetailLine renders one question.
func DetailLine(q grading.QuestionResult) string {
	var status string
	switch {
	case !q.Keyed():
		status = "NOT SCORED"
	case q.IsCorrect:
		status = "CORRECT"
	default:
		status = "INCORRECT"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Q%d: selected %s, correct %s - %s (confidence: %s)",
		q.Number, q.SelectedLetter, q.CorrectLetter, status, Percent(q.Confidence))
	if q.Error != "" {
		fmt.Fprintf(&sb, " [%s]", q.Error)
	}
	return sb.String()
}

// WriteLogLine appends one line to a batch results log: "name: 80.00%" on
// success, "name: FAILED: reason" otherwise.
func WriteLogLine(w io.Writer, name string, res *grading.Result, err error) error {
	var line string
	if err != nil {
		reason := strings.ReplaceAll(err.Error(), "\n", " ")
		line = fmt.Sprintf("%s: FAILED: %s\n", name, reason)
	} else {
		line = fmt.Sprintf("%s: %s\n", name, Percent(res.Score))
	}
	_, werr := io.WriteString(w, line)
	return werr
}
