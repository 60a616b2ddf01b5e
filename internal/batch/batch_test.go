package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/omr-grader/internal/answerkey"
	"github.com/ironsheep/omr-grader/internal/grading"
	"github.com/ironsheep/omr-grader/internal/omr"
	"github.com/ironsheep/omr-grader/internal/omrtest"
	"github.com/ironsheep/omr-grader/internal/store"
)

var answers = []int{2, 0, 4, 1, 3}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sheetPhoto(marks ...int) *image.Gray {
	s := omrtest.NewSheet(5, 5)
	s.Fill = omrtest.Marked(marks...)
	return omrtest.Photo(s.Render(), 420, 460, omrtest.Centered(420, 460, 320, 360))
}

// setupFolder writes a small batch: two gradable photos, a photo without
// a sheet, an undecodable file and a file that is not an image.
func setupFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	omrtest.WritePNG(t, dir, "b-perfect.png", sheetPhoto(answers...))
	omrtest.WritePNG(t, dir, "c-one-wrong.png", sheetPhoto(2, 0, 4, 1, 0))

	empty := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range empty.Pix {
		empty.Pix[i] = omrtest.Background
	}
	omrtest.WritePNG(t, dir, "a-empty.png", empty)
	omrtest.WriteFile(t, dir, "d-corrupt.jpg", []byte("not a jpeg"))
	omrtest.WriteFile(t, dir, "notes.txt", []byte("ignored"))
	return dir
}

func newGrader(t *testing.T) *grading.Grader {
	t.Helper()
	g, err := grading.NewGrader(grading.DefaultConfig(), answerkey.FromList(answers...), grading.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewGrader failed: %v", err)
	}
	return g
}

func TestDiscover(t *testing.T) {
	dir := setupFolder(t)
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	omrtest.WriteFile(t, dir, ".hidden.png", []byte("x"))

	paths, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	want := []string{"a-empty.png", "b-perfect.png", "c-one-wrong.png", "d-corrupt.jpg"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("got %v, want %v", names, want)
	}

	if _, err := Discover(filepath.Join(dir, "missing")); err == nil {
		t.Error("Discover on a missing folder should fail")
	}
}

func TestRun_ContinuesPastFailures(t *testing.T) {
	dir := setupFolder(t)
	out := t.TempDir()
	paths, err := Discover(dir)
	if err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer db.Close()
	run, err := db.StartRun(context.Background(), "key.json", grading.PresetCombined)
	if err != nil {
		t.Fatal(err)
	}

	var log bytes.Buffer
	sum, err := Run(context.Background(), newGrader(t), paths, Options{
		Workers:  3,
		Timeout:  time.Minute,
		OutDir:   out,
		Annotate: true,
		Reports:  true,
		Log:      &log,
		Store:    db,
		RunID:    run.ID,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Graded != 2 || sum.Failed != 2 {
		t.Fatalf("got %d graded, %d failed, want 2 and 2", sum.Graded, sum.Failed)
	}
	if sum.Mean != 90 {
		t.Errorf("Mean: got %.2f, want 90", sum.Mean)
	}
	if !errors.Is(sum.Items[0].Err, omr.ErrDocumentNotFound) {
		t.Errorf("a-empty.png: got %v, want ErrDocumentNotFound", sum.Items[0].Err)
	}
	if !errors.Is(sum.Items[3].Err, omr.ErrImageLoad) {
		t.Errorf("d-corrupt.jpg: got %v, want ErrImageLoad", sum.Items[3].Err)
	}

	lines := strings.Split(strings.TrimSpace(log.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("results log has %d lines, want 4:\n%s", len(lines), log.String())
	}
	if !strings.HasPrefix(lines[0], "a-empty.png: FAILED: ") ||
		lines[1] != "b-perfect.png: 100.00%" ||
		lines[2] != "c-one-wrong.png: 80.00%" ||
		!strings.HasPrefix(lines[3], "d-corrupt.jpg: FAILED: ") {
		t.Errorf("unexpected results log:\n%s", log.String())
	}

	for _, name := range []string{"b-perfect_graded.png", "b-perfect_report.txt", "c-one-wrong_graded.png", "c-one-wrong_report.txt"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "a-empty_graded.png")); err == nil {
		t.Error("failed image should not produce an annotated output")
	}
	data, err := os.ReadFile(filepath.Join(out, "c-one-wrong_report.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "SUMMARY: 4/5 correct") {
		t.Errorf("report content:\n%s", data)
	}

	stored, err := db.ListOutcomes(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(stored) != 4 || stored[1].Score == nil || *stored[1].Score != 100 || stored[0].Error == "" {
		t.Errorf("stored outcomes: %+v", stored)
	}
}

func TestRun_Timeout(t *testing.T) {
	dir := t.TempDir()
	path := omrtest.WritePNG(t, dir, "sheet.png", sheetPhoto(answers...))

	sum, err := Run(context.Background(), newGrader(t), []string{path}, Options{
		Workers: 1,
		Timeout: time.Nanosecond,
		Logger:  quietLogger(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	item := sum.Items[0]
	if !errors.Is(item.Err, ErrTimeout) || !errors.Is(item.Err, context.DeadlineExceeded) {
		t.Errorf("got %v, want a timeout", item.Err)
	}
	if item.Result != nil {
		t.Error("a timed-out image must not carry a result")
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := setupFolder(t)
	paths, _ := Discover(dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, newGrader(t), paths, Options{Workers: 2, Logger: quietLogger()}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestRun_Empty(t *testing.T) {
	var log bytes.Buffer
	sum, err := Run(context.Background(), newGrader(t), nil, Options{Log: &log, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Graded != 0 || sum.Failed != 0 || sum.Mean != 0 || log.Len() != 0 {
		t.Errorf("empty batch: got %+v, log %q", sum, log.String())
	}
}
