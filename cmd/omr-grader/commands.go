package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ironsheep/omr-grader/internal/answerkey"
	"github.com/ironsheep/omr-grader/internal/batch"
	"github.com/ironsheep/omr-grader/internal/grading"
	"github.com/ironsheep/omr-grader/internal/imaging"
	"github.com/ironsheep/omr-grader/internal/report"
	"github.com/ironsheep/omr-grader/internal/server"
	"github.com/ironsheep/omr-grader/internal/store"
)

func (e *env) serve(args []string) error {
	var c common
	fs := e.flags("serve")
	c.register(fs)
	if err := e.parse(fs, args); err != nil {
		return err
	}
	if err := e.load(c); err != nil {
		return err
	}

	e.logger.Debug("omr-grader starting", "version", Version, "built", BuildTime, "commit", GitCommit, "preset", e.cfg.Preset)
	srv := server.New(e.cfg.Grading, server.WithLogger(e.logger), server.WithVersion(Version))
	return srv.Serve(e.stdin, e.stdout)
}

func (e *env) grade(args []string) error {
	var c common
	fs := e.flags("grade")
	c.register(fs)
	keyPath := fs.String("key", "", "answer key (.json or .txt); without one nothing is scored")
	annotate := fs.String("annotate", "", "write the annotated sheet to this PNG")
	reportPath := fs.String("report", "", "write the text report to this file instead of stdout")
	asJSON := fs.Bool("json", false, "print the result as JSON instead of the text report")
	rectified := fs.Bool("rectified", false, "the image is a flat scan of the sheet; skip sheet location")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.stderr, "grade requires exactly one image path")
		return errUsage
	}
	if err := e.load(c); err != nil {
		return err
	}
	path := fs.Arg(0)

	key, err := loadKey(*keyPath)
	if err != nil {
		return err
	}
	g, err := grading.NewGrader(e.cfg.Grading, key, grading.WithLogger(e.logger))
	if err != nil {
		return err
	}
	img, err := imaging.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	var res *grading.Result
	if *rectified {
		res, err = g.GradeRectified(ctx, img)
	} else {
		res, err = g.Grade(ctx, img)
	}
	if err != nil {
		return err
	}

	if *annotate != "" {
		if err := imaging.Save(*annotate, res.Annotated); err != nil {
			return err
		}
	}
	name := filepath.Base(path)
	if *reportPath != "" {
		if err := writeFile(*reportPath, func(f *os.File) error { return report.WriteReport(f, name, res) }); err != nil {
			return err
		}
	}

	switch {
	case *asJSON:
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case *reportPath != "":
		return report.WriteLogLine(e.stdout, name, res, nil)
	default:
		return report.WriteReport(e.stdout, name, res)
	}
}

func (e *env) batch(args []string) error {
	var c common
	fs := e.flags("batch")
	c.register(fs)
	keyPath := fs.String("key", "", "answer key (.json or .txt)")
	outDir := fs.String("out", "", "folder for annotated sheets, reports and the results log")
	logPath := fs.String("log", "", "results log file (default <out>/results.txt, or stdout without -out)")
	dbPath := fs.String("db", "", "SQLite database to record the run in (default from config)")
	workers := fs.Int("workers", 0, "images graded at once (default from config)")
	timeout := fs.Duration("timeout", 0, "time limit per image (default from config)")
	annotate := fs.Bool("annotate", true, "write <name>_graded.png per image")
	reports := fs.Bool("reports", true, "write <name>_report.txt per image")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *keyPath == "" {
		fmt.Fprintln(e.stderr, "batch requires -key and exactly one folder")
		return errUsage
	}
	if err := e.load(c); err != nil {
		return err
	}
	bc := e.cfg.Batch
	if *workers > 0 {
		bc.Workers = *workers
	}
	if *timeout > 0 {
		bc.Timeout = *timeout
	}
	if *dbPath != "" {
		bc.DB = *dbPath
	}

	key, err := loadKey(*keyPath)
	if err != nil {
		return err
	}
	g, err := grading.NewGrader(e.cfg.Grading, key, grading.WithLogger(e.logger))
	if err != nil {
		return err
	}
	paths, err := batch.Discover(fs.Arg(0))
	if err != nil {
		return err
	}

	opts := batch.Options{
		Workers:  bc.Workers,
		Timeout:  bc.Timeout,
		OutDir:   *outDir,
		Annotate: *annotate,
		Reports:  *reports,
		Log:      e.stdout,
		Logger:   e.logger,
	}
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if *logPath == "" {
			*logPath = filepath.Join(*outDir, "results.txt")
		}
	}
	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			return fmt.Errorf("failed to create results log: %w", err)
		}
		defer f.Close()
		opts.Log = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if bc.DB != "" {
		db, err := store.Open(bc.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		run, err := db.StartRun(ctx, *keyPath, e.cfg.Preset)
		if err != nil {
			return err
		}
		opts.Store, opts.RunID = db, run.ID
		e.logger.Info("recording run", "db", bc.DB, "run", run.ID)
	}

	start := time.Now()
	e.logger.Info("batch started", "images", len(paths), "workers", bc.Workers, "preset", e.cfg.Preset)
	sum, err := batch.Run(ctx, g, paths, opts)
	if err != nil {
		return err
	}
	e.logger.Info("batch finished", "graded", sum.Graded, "failed", sum.Failed,
		"mean", report.Percent(sum.Mean), "elapsed", time.Since(start).Round(time.Millisecond))
	if opts.Log != e.stdout {
		fmt.Fprintf(e.stdout, "%d graded, %d failed, mean score %s\n", sum.Graded, sum.Failed, report.Percent(sum.Mean))
	}
	return nil
}

func (e *env) key(args []string) error {
	fs := e.flags("key")
	out := fs.String("o", "", "write the normalized key here instead of stdout")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.stderr, "key requires exactly one answer key path")
		return errUsage
	}

	k, err := answerkey.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	if *out == "" {
		return k.WriteJSON(e.stdout)
	}
	if err := writeFile(*out, func(f *os.File) error { return k.WriteJSON(f) }); err != nil {
		return err
	}
	fmt.Fprintf(e.stderr, "%s written to %s\n", k, *out)
	return nil
}

func (e *env) runs(args []string) error {
	fs := e.flags("runs")
	configPath := fs.String("config", "", "YAML configuration file")
	dbPath := fs.String("db", "", "SQLite results database (default from config)")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	if err := e.load(common{configPath: *configPath}); err != nil {
		return err
	}
	path := *dbPath
	if path == "" {
		path = e.cfg.Batch.DB
	}
	if path == "" {
		fmt.Fprintln(e.stderr, "runs requires -db or a configured database")
		return errUsage
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open results database: %w", err)
	}

	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	if fs.NArg() == 0 {
		runs, err := db.Runs(ctx)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(e.stdout, "%s  %s  %-8s  %s\n", r.ID, r.StartedAt.Local().Format(time.DateTime), r.Preset, r.KeyPath)
		}
		return nil
	}

	outcomes, err := db.ListOutcomes(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Score == nil {
			fmt.Fprintf(e.stdout, "%s: FAILED: %s\n", o.File, o.Error)
			continue
		}
		fmt.Fprintf(e.stdout, "%s: %s (%d/%d)\n", o.File, report.Percent(*o.Score), o.Correct, o.Scored)
	}
	return nil
}

func loadKey(path string) (*answerkey.Key, error) {
	if path == "" {
		return nil, nil
	}
	return answerkey.Load(path)
}

// writeFile creates path and hands it to write, closing it afterwards.
func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
