package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/segmentgridgo/internal/app"
	"github.com/specialistvlad/segmentgridgo/internal/report"
	"github.com/specialistvlad/segmentgridgo/internal/trainer"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

const usage = `
SegmentGrid - grid search and result analysis for tissue segmentation experiments.

Usage:
  segmentgrid <command> [options] [arguments]

Commands:
  search         Run a hyperparameter grid search described by an HCL file.
  rank           Rank run summaries below a directory by one metric.
  compare        Compare the summaries of two runs.
  history        List runs recorded in a ledger, or show one run.
  serve-trainer  Serve the random forest trainer over gRPC.

Run 'segmentgrid <command> -h' for the options of a command.
`

// common holds the flags every command accepts.
type common struct {
	logFormat  *string
	logLevel   *string
	healthPort *int
}

func newFlagSet(name, synopsis string, output io.Writer) (*flag.FlagSet, common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "\nUsage:\n  segmentgrid %s\n\nOptions:\n", synopsis)
		fs.PrintDefaults()
	}
	return fs, common{
		logFormat:  fs.String("log-format", "json", "Log output format. Options: 'text' or 'json'."),
		logLevel:   fs.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'."),
		healthPort: fs.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled."),
	}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	if len(args) == 0 {
		fmt.Fprint(output, usage)
		return nil, true, nil
	}

	command, rest := args[0], args[1:]
	var (
		cfg   app.Config
		fs    *flag.FlagSet
		flags common
		bind  func() error
	)
	cfg.Command = command

	switch command {
	case "-h", "-help", "--help", "help":
		fmt.Fprint(output, usage)
		return nil, true, nil

	case app.CommandSearch:
		fs, flags = newFlagSet(command, "search [options] SEARCH_PATH", output)
		file := fs.String("file", "", "Path to an HCL search file or a directory of them.")
		fs.StringVar(file, "f", "", "Path to an HCL search file or a directory of them (shorthand).")
		workers := fs.Int("workers", 0, "Concurrent training units. 0 uses the search file or the CPU count.")
		bind = func() error {
			cfg.Search = app.SearchConfig{File: firstNonEmpty(*file, fs.Arg(0)), Workers: *workers}
			return maxArgs(fs, 1)
		}

	case app.CommandRank:
		fs, flags = newFlagSet(command, "rank [options] -metric METRIC -label LABEL ROOT", output)
		metric := fs.String("metric", "", "Metric to rank by, e.g. DICE.")
		label := fs.String("label", "", "Label (region) to rank by, e.g. WhiteMatter.")
		statistic := fs.String("statistic", report.StatMean, "Statistic to rank by.")
		rank := fs.Int("rank", 1, "1-based rank to select.")
		out := fs.String("out", "", "Directory to save the ranking CSV in. Empty prints only.")
		bind = func() error {
			cfg.Rank = app.RankConfig{
				Root: fs.Arg(0), Metric: *metric, Label: *label,
				Statistic: strings.ToUpper(*statistic), Rank: *rank, OutputDir: *out,
			}
			return maxArgs(fs, 1)
		}

	case app.CommandCompare:
		fs, flags = newFlagSet(command, "compare [options] ROOT RUN_A RUN_B", output)
		statistic := fs.String("statistic", report.StatMean, "Statistic to compare.")
		out := fs.String("out", "", "File to write the comparison to. Empty prints to stdout.")
		bind = func() error {
			cfg.Compare = app.CompareConfig{
				Root: fs.Arg(0), RunA: fs.Arg(1), RunB: fs.Arg(2),
				Statistic: strings.ToUpper(*statistic), Output: *out,
			}
			return maxArgs(fs, 3)
		}

	case app.CommandHistory:
		fs, flags = newFlagSet(command, "history [options] LEDGER [RUN_ID]", output)
		limit := fs.Int("limit", 20, "Maximum number of runs to list. 0 lists all.")
		bind = func() error {
			cfg.History = app.HistoryConfig{Ledger: fs.Arg(0), RunID: fs.Arg(1), Limit: *limit}
			return maxArgs(fs, 2)
		}

	case app.CommandServeTrainer:
		fs, flags = newFlagSet(command, "serve-trainer [options]", output)
		listen := fs.String("listen", ":50051", "Address to serve the trainer on.")
		maxModels := fs.Int("max-models", trainer.DefaultMaxModels, "Trained models kept in memory.")
		bind = func() error {
			cfg.Trainer = app.TrainerConfig{Listen: *listen, MaxModels: *maxModels}
			return maxArgs(fs, 0)
		}

	default:
		fmt.Fprint(output, usage)
		return nil, false, usageError("unknown command %q", command)
	}

	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}
	if err := bind(); err != nil {
		return nil, false, err
	}
	slog.Debug("Arguments parsed successfully.", "command", command)

	cfg.LogFormat = strings.ToLower(*flags.logFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(*flags.logLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	cfg.HealthcheckPort = *flags.healthPort

	config, err := app.NewConfig(cfg)
	if err != nil {
		fs.Usage()
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

func maxArgs(fs *flag.FlagSet, n int) error {
	if fs.NArg() > n {
		return usageError("%s: unexpected arguments: %s", fs.Name(), strings.Join(fs.Args()[n:], " "))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
