package grading

import (
	"fmt"
	"sort"

	"github.com/ironsheep/omr-grader/internal/detection"
)

// Group is the set of bubbles belonging to one question, left to right.
type Group struct {
	Regions []detection.Region

	// Complete is false for a trailing group with fewer regions than
	// options; its Regions hold whatever was left over.
	Complete bool
}

// SortReadingOrder orders regions top to bottom by bounding box top, then
// left to right. The sort is stable.
func SortReadingOrder(regions []detection.Region) []detection.Region {
	out := make([]detection.Region, len(regions))
	copy(out, regions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Box.Y != out[j].Box.Y {
			return out[i].Box.Y < out[j].Box.Y
		}
		return out[i].Box.X < out[j].Box.X
	})
	return out
}

// Partition splits regions into questions groups of options bubbles.
//
// Regions are put in reading order, cut into consecutive runs of options,
// and each run is sorted left to right so option indices follow the
// printed columns. Runs that come up short are returned as incomplete
// groups. Regions beyond questions×options are ignored.
//
// warning is non-empty when the region count differs from
// questions×options.
func Partition(regions []detection.Region, questions, options int) (groups []Group, warning string) {
	if want := questions * options; len(regions) != want {
		warning = fmt.Sprintf("expected %d bubbles (%d questions x %d options), found %d", want, questions, options, len(regions))
	}

	sorted := SortReadingOrder(regions)
	groups = make([]Group, questions)
	for q := range groups {
		start := q * options
		end := min(start+options, len(sorted))
		if start >= end {
			continue
		}
		run := make([]detection.Region, end-start)
		copy(run, sorted[start:end])
		sort.SliceStable(run, func(i, j int) bool { return run[i].Box.X < run[j].Box.X })
		groups[q] = Group{Regions: run, Complete: len(run) == options}
	}
	return groups, warning
}

// QuestionCount resolves the number of questions to grade: configured
// first, then the key's total, then as many full rows as the regions
// allow.
func QuestionCount(configured, keyTotal, regions, options int) int {
	switch {
	case configured > 0:
		return configured
	case keyTotal > 0:
		return keyTotal
	case options > 0:
		return regions / options
	}
	return 0
}
