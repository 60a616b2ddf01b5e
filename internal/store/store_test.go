package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/ironsheep/omr-grader/internal/grading"
	"github.com/ironsheep/omr-grader/internal/omr"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	run, err := s.StartRun(ctx, "key.json", "combined")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	id, err := uuid.Parse(run.ID)
	if err != nil || id.Version() != 7 {
		t.Errorf("run id %q is not a v7 UUID", run.ID)
	}

	sel, key := 1, 1
	res := &grading.Result{
		Questions: []grading.QuestionResult{{Number: 1, Selected: &sel, Correct: &key, IsCorrect: true, SelectedLetter: "B", CorrectLetter: "B", Confidence: 99.5}},
		Correct:   1,
		Scored:    1,
		Score:     100,
	}
	failure := omr.FailedAt(omr.StageLocatingDocument, omr.ErrDocumentNotFound)

	for _, o := range []Outcome{
		NewOutcome("b.png", res, nil),
		NewOutcome("a.png", nil, failure),
	} {
		if err := s.SaveOutcome(ctx, run.ID, o); err != nil {
			t.Fatalf("SaveOutcome(%s) failed: %v", o.File, err)
		}
	}

	got, err := s.ListOutcomes(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(got))
	}
	if got[0].File != "a.png" || got[0].Score != nil || got[0].Error != failure.Error() {
		t.Errorf("failed outcome: got %+v", got[0])
	}
	b := got[1]
	if b.Score == nil || *b.Score != 100 || b.Correct != 1 || b.Scored != 1 {
		t.Errorf("graded outcome: got %+v", b)
	}
	if len(b.Questions) != 1 || b.Questions[0].SelectedLetter != "B" || *b.Questions[0].Selected != 1 {
		t.Errorf("questions did not survive the round trip: %+v", b.Questions)
	}
}

func TestStore_ReplaceOutcome(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	run, err := s.StartRun(ctx, "key.json", "standard")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SaveOutcome(ctx, run.ID, NewOutcome("a.png", nil, errors.New("timeout"))); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveOutcome(ctx, run.ID, NewOutcome("a.png", &grading.Result{Score: 60}, nil)); err != nil {
		t.Fatal(err)
	}
	got, err := s.ListOutcomes(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Error != "" || *got[0].Score != 60 {
		t.Errorf("outcome not replaced: %+v", got)
	}
}

func TestStore_UnknownRun(t *testing.T) {
	s := openTemp(t)
	if err := s.SaveOutcome(context.Background(), "no-such-run", Outcome{File: "a.png"}); err == nil {
		t.Error("saving under an unknown run should violate the foreign key")
	}
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	first, _ := s.StartRun(ctx, "k1.json", "combined")
	second, _ := s.StartRun(ctx, "k2.json", "strict")

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Errorf("Runs should list newest first, got %+v", runs)
	}
	if !runs[1].StartedAt.Equal(first.StartedAt) || runs[1].Preset != "combined" {
		t.Errorf("run fields not preserved: %+v vs %+v", runs[1], first)
	}
}
