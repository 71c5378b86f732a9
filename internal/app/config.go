package app

import (
	"errors"
	"fmt"
)

// Commands understood by App.Run.
const (
	CommandSearch       = "search"
	CommandRank         = "rank"
	CommandCompare      = "compare"
	CommandHistory      = "history"
	CommandServeTrainer = "serve-trainer"
)

// ErrInvalidConfig is wrapped by every NewConfig failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Command string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	Search  SearchConfig
	Rank    RankConfig
	Compare CompareConfig
	History HistoryConfig
	Trainer TrainerConfig
}

// SearchConfig drives the search command.
type SearchConfig struct {
	File    string // HCL search file
	Workers int    // overrides search.workers when > 0
}

// RankConfig drives the rank command.
type RankConfig struct {
	Root      string
	Metric    string
	Label     string
	Statistic string
	Rank      int
	OutputDir string // ranking CSV is written here when set
}

// CompareConfig drives the compare command.
type CompareConfig struct {
	Root      string
	RunA      string
	RunB      string
	Statistic string
	Output    string // comparison CSV path, stdout when empty
}

// HistoryConfig drives the history command.
type HistoryConfig struct {
	Ledger string
	RunID  string // detail of one run when set, listing otherwise
	Limit  int
}

// TrainerConfig drives the serve-trainer command.
type TrainerConfig struct {
	Listen    string
	MaxModels int
}

// NewConfig validates cfg for its command.
func NewConfig(cfg Config) (*Config, error) {
	var missing string
	switch cfg.Command {
	case CommandSearch:
		if cfg.Search.File == "" {
			missing = "search file"
		}
		if cfg.Search.Workers < 0 {
			return nil, fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
		}
	case CommandRank:
		switch {
		case cfg.Rank.Root == "":
			missing = "root"
		case cfg.Rank.Metric == "":
			missing = "metric"
		case cfg.Rank.Label == "":
			missing = "label"
		}
		if cfg.Rank.Rank < 1 {
			return nil, fmt.Errorf("%w: rank must be >= 1, got %d", ErrInvalidConfig, cfg.Rank.Rank)
		}
	case CommandCompare:
		switch {
		case cfg.Compare.Root == "":
			missing = "root"
		case cfg.Compare.RunA == "" || cfg.Compare.RunB == "":
			missing = "two run names"
		}
	case CommandHistory:
		if cfg.History.Ledger == "" {
			missing = "ledger"
		}
	case CommandServeTrainer:
		if cfg.Trainer.Listen == "" {
			missing = "listen address"
		}
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidConfig, cfg.Command)
	}
	if missing != "" {
		return nil, fmt.Errorf("%w: %s: %s is required", ErrInvalidConfig, cfg.Command, missing)
	}
	return &cfg, nil
}
