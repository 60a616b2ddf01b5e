// Package store keeps batch grading results in a SQLite database.
//
// Each batch is a run identified by a time-ordered UUID; each graded image
// is an outcome row of that run with its score and per-question answers
// stored as JSON.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/omr-grader/internal/grading"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	key_path   TEXT NOT NULL,
	preset     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	file      TEXT NOT NULL,
	score     REAL,
	correct   INTEGER NOT NULL DEFAULT 0,
	scored    INTEGER NOT NULL DEFAULT 0,
	error     TEXT NOT NULL DEFAULT '',
	questions TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (run_id, file)
);
`

// Store wraps the results database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database file at path, creating parent
// directories as needed, and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run describes one batch.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	KeyPath   string    `json:"key_path"`
	Preset    string    `json:"preset"`
}

// Outcome is one graded (or failed) image of a run.
type Outcome struct {
	File      string                   `json:"file"`
	Score     *float64                 `json:"score"`
	Correct   int                      `json:"correct"`
	Scored    int                      `json:"scored"`
	Error     string                   `json:"error,omitempty"`
	Questions []grading.QuestionResult `json:"questions,omitempty"`
}

// NewOutcome builds an outcome from a grading result or error.
func NewOutcome(file string, res *grading.Result, err error) Outcome {
	o := Outcome{File: file}
	if err != nil {
		o.Error = err.Error()
		return o
	}
	score := res.Score
	o.Score = &score
	o.Correct = res.Correct
	o.Scored = res.Scored
	o.Questions = res.Questions
	return o
}

// StartRun records a new run and returns it.
func (s *Store) StartRun(ctx context.Context, keyPath, preset string) (Run, error) {
	run := Run{
		ID:        uuid.Must(uuid.NewV7()).String(),
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
		KeyPath:   keyPath,
		Preset:    preset,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, key_path, preset) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.KeyPath, run.Preset)
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// SaveOutcome stores o under runID, replacing an earlier outcome for the
// same file.
func (s *Store) SaveOutcome(ctx context.Context, runID string, o Outcome) error {
	questions := o.Questions
	if questions == nil {
		questions = []grading.QuestionResult{}
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	var score sql.NullFloat64
	if o.Score != nil {
		score = sql.NullFloat64{Float64: *o.Score, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO outcomes (run_id, file, score, correct, scored, error, questions)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, o.File, score, o.Correct, o.Scored, o.Error, string(data))
	if err != nil {
		return fmt.Errorf("failed to save outcome for %s: %w", o.File, err)
	}
	return nil
}

// ListOutcomes returns a run's outcomes ordered by file name.
func (s *Store) ListOutcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file, score, correct, scored, error, questions FROM outcomes WHERE run_id = ? ORDER BY file`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o     Outcome
			score sql.NullFloat64
			data  string
		)
		if err := rows.Scan(&o.File, &score, &o.Correct, &o.Scored, &o.Error, &data); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if score.Valid {
			v := score.Float64
			o.Score = &v
		}
		if err := json.Unmarshal([]byte(data), &o.Questions); err != nil {
			return nil, fmt.Errorf("failed to decode questions of %s: %w", o.File, err)
		}
		if len(o.Questions) == 0 {
			o.Questions = nil
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Runs returns every run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, key_path, preset FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r  Run
			ms int64
		)
		if err := rows.Scan(&r.ID, &ms, &r.KeyPath, &r.Preset); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
