// Package config assembles the runtime configuration from defaults, an
// optional YAML file, a .env file and OMR_* environment variables, in that
// order of increasing precedence.
//
// Example file:
//
//	preset: strict
//	log_level: debug
//	grading:
//	  questions: 20
//	  options: 4
//	  ambiguity: flag
//	  mark:
//	    min_pixels: 400
//	batch:
//	  workers: 8
//	  timeout: 45s
//	  db: results/omr.db
//
// Keys under grading override the chosen preset field by field.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/omr-grader/internal/grading"
)

// Environment variables read by Load.
const (
	EnvPreset    = "OMR_PRESET"
	EnvLogLevel  = "OMR_LOG_LEVEL"
	EnvWorkers   = "OMR_WORKERS"
	EnvTimeout   = "OMR_TIMEOUT"
	EnvDB        = "OMR_DB"
	EnvQuestions = "OMR_QUESTIONS"
	EnvOptions   = "OMR_OPTIONS"
)

// Config is the resolved configuration.
type Config struct {
	Preset   string         `yaml:"preset"`
	LogLevel string         `yaml:"log_level"`
	Grading  grading.Config `yaml:"-"`
	Batch    BatchConfig    `yaml:"batch"`
}

// BatchConfig controls folder grading.
type BatchConfig struct {
	// Workers is the number of images graded at once.
	Workers int `yaml:"workers"`

	// Timeout bounds the time spent on one image.
	Timeout time.Duration `yaml:"timeout"`

	// DB is the SQLite results database; empty disables it.
	DB string `yaml:"db"`
}

type fileConfig struct {
	Preset   string      `yaml:"preset"`
	LogLevel string      `yaml:"log_level"`
	Grading  yaml.Node   `yaml:"grading"`
	Batch    BatchConfig `yaml:"batch"`
}

func (c *Config) defaults() {
	if c.Preset == "" {
		c.Preset = grading.PresetCombined
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = runtime.NumCPU()
	}
	if c.Batch.Timeout <= 0 {
		c.Batch.Timeout = 30 * time.Second
	}
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Preset:   fc.Preset,
		LogLevel: fc.LogLevel,
		Batch:    fc.Batch,
	}
	if v := os.Getenv(EnvPreset); v != "" {
		cfg.Preset = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if err := applyBatchEnv(&cfg.Batch); err != nil {
		return nil, err
	}
	cfg.defaults()

	g, err := grading.Preset(cfg.Preset)
	if err != nil {
		return nil, err
	}
	if !fc.Grading.IsZero() {
		if err := fc.Grading.Decode(&g); err != nil {
			return nil, fmt.Errorf("failed to parse grading section: %w", err)
		}
	}
	if err := intEnv(EnvQuestions, &g.Questions); err != nil {
		return nil, err
	}
	if err := intEnv(EnvOptions, &g.Options); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grading config: %w", err)
	}
	cfg.Grading = g

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyBatchEnv(b *BatchConfig) error {
	if err := intEnv(EnvWorkers, &b.Workers); err != nil {
		return err
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		b.Timeout = d
	}
	if v := os.Getenv(EnvDB); v != "" {
		b.DB = v
	}
	return nil
}

func intEnv(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", name, v)
	}
	*dst = n
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
