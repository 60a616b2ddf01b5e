// Package batch grades every image in a folder against one answer key.
//
// Images are graded on a bounded pool of workers sharing one immutable
// grading.Grader. A failure on one image is recorded and the batch moves
// on; only cancelling the parent context stops it early. Per-image outputs
// (annotated sheet, text report) are written by the worker that graded the
// image; the results log and the database are written once all workers are
// done, in file name order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/omr-grader/internal/grading"
	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
	"github.com/ironsheep/omr-grader/internal/report"
	"github.com/ironsheep/omr-grader/internal/store"
)

// ErrTimeout marks an image abandoned because it exceeded the per-image
// time limit.
var ErrTimeout = errors.New("grading timed out")

// Options configures a batch run.
type Options struct {
	// Workers bounds concurrent gradings; values below 1 mean 1.
	Workers int

	// Timeout bounds each image; 0 disables the limit.
	Timeout time.Duration

	// OutDir receives <name>_graded.png and <name>_report.txt per image.
	// Empty writes nothing per image.
	OutDir   string
	Annotate bool
	Reports  bool

	// Log receives one line per image.
	Log io.Writer

	// Store and RunID persist outcomes when Store is set.
	Store *store.Store
	RunID string

	Logger *slog.Logger
}

// Item is the outcome for one image.
type Item struct {
	Path     string
	Name     string
	Result   *grading.Result
	Err      error
	Duration time.Duration
}

// Summary aggregates a batch.
type Summary struct {
	// Items are ordered by file name.
	Items []Item

	Graded int
	Failed int

	// Mean is the average score of the graded images.
	Mean float64
}

// Discover lists the supported images directly inside dir, sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !imgproc.IsSupported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Run grades paths with g.
//
// The returned error is non-nil only when ctx is cancelled or a shared
// output (log, database) fails; per-image failures are reported in the
// Summary.
func Run(ctx context.Context, g *grading.Grader, paths []string, opts Options) (*Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := max(opts.Workers, 1)

	items := make([]Item, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			item := gradeOne(egCtx, g, path, opts.Timeout)
			if item.Err == nil {
				if err := writeOutputs(item, opts); err != nil {
					logger.Warn("failed to write outputs", "file", item.Name, "error", err)
				}
				logger.Info("graded", "file", item.Name, "score", report.Percent(item.Result.Score), "elapsed", item.Duration)
			} else {
				logger.Warn("grading failed", "file", item.Name, "error", item.Err)
			}
			items[i] = item
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(a, b int) bool { return items[a].Name < items[b].Name })
	sum := &Summary{Items: items}
	var total float64
	for _, it := range items {
		if it.Err != nil {
			sum.Failed++
			continue
		}
		sum.Graded++
		total += it.Result.Score
	}
	if sum.Graded > 0 {
		sum.Mean = total / float64(sum.Graded)
	}

	if opts.Log != nil {
		for _, it := range items {
			if err := report.WriteLogLine(opts.Log, it.Name, it.Result, it.Err); err != nil {
				return sum, fmt.Errorf("failed to write results log: %w", err)
			}
		}
	}
	if opts.Store != nil {
		for _, it := range items {
			if err := opts.Store.SaveOutcome(ctx, opts.RunID, store.NewOutcome(it.Name, it.Result, it.Err)); err != nil {
				return sum, err
			}
		}
	}
	return sum, nil
}

// gradeOne loads and grades one image. When timeout elapses first, the
// grading goroutine is abandoned and the item fails with ErrTimeout.
func gradeOne(ctx context.Context, g *grading.Grader, path string, timeout time.Duration) Item {
	item := Item{Path: path, Name: filepath.Base(path)}
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		res *grading.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		img, err := imgproc.Load(path)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		res, err := g.Grade(ctx, img)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		item.Result, item.Err = out.res, out.err
		if errors.Is(item.Err, context.DeadlineExceeded) {
			item.Err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, item.Err)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			item.Err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, ctx.Err())
		} else {
			item.Err = ctx.Err()
		}
	}
	item.Duration = time.Since(start)
	return item
}

func writeOutputs(it Item, opts Options) error {
	if opts.OutDir == "" {
		return nil
	}
	base := strings.TrimSuffix(it.Name, filepath.Ext(it.Name))
	if opts.Annotate && it.Result.Annotated != nil {
		if err := imgproc.Save(filepath.Join(opts.OutDir, base+"_graded.png"), it.Result.Annotated); err != nil {
			return err
		}
	}
	if opts.Reports {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(filepath.Join(opts.OutDir, base+"_report.txt"))
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		if err := report.WriteReport(f, base, it.Result); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}
