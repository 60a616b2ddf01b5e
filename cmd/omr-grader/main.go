package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ironsheep/omr-grader/internal/config"
	"github.com/ironsheep/omr-grader/internal/grading"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run dispatches a command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	} else if len(args) > 0 {
		switch args[0] {
		case "--version", "-v":
			cmd, args = "version", args[1:]
		case "--help", "-h":
			cmd, args = "help", args[1:]
		}
	}

	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}
	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "omr-grader %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return 0
	case "help":
		printUsage(stdout)
		return 0
	case "serve":
		err = e.serve(args)
	case "grade":
		err = e.grade(args)
	case "batch":
		err = e.batch(args)
	case "key":
		err = e.key(args)
	case "runs":
		err = e.runs(args)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	}
	fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `omr-grader - grade photographed multiple-choice answer sheets

Usage:
  omr-grader [serve] [-config file]            MCP server on stdin/stdout
  omr-grader grade [flags] <image>             grade one sheet
  omr-grader batch [flags] -key <key> <dir>    grade every image in a folder
  omr-grader key [-o file] <key>               normalize an answer key
  omr-grader runs [-db file] [run-id]          list stored batch runs
  omr-grader --version | --help

Run "omr-grader <command> -h" for the flags of a command.

Presets: %s

Environment variables (also read from ./.env):
  OMR_PRESET, OMR_LOG_LEVEL, OMR_WORKERS, OMR_TIMEOUT, OMR_DB,
  OMR_QUESTIONS, OMR_OPTIONS
`, strings.Join(grading.PresetNames(), ", "))
}

// errUsage reports bad command-line usage that was already explained.
var errUsage = errors.New("usage")

type env struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	preset     string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.preset, "preset", "", "detection preset: "+strings.Join(grading.PresetNames(), ", "))
}

func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *env) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

// load resolves the configuration and logger. A -preset flag replaces the
// configured preset but keeps the configured sheet layout.
func (e *env) load(c common) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.preset != "" {
		g, err := grading.Preset(c.preset)
		if err != nil {
			return err
		}
		g.Questions = cfg.Grading.Questions
		g.Options = cfg.Grading.Options
		g.Ambiguity = cfg.Grading.Ambiguity
		cfg.Grading = g
		cfg.Preset = strings.ToLower(strings.TrimSpace(c.preset))
	}
	e.cfg = cfg
	e.logger = cfg.Logger(e.stderr)
	return nil
}
