// Package gridfile loads a search definition written in HCL: the
// hyperparameter grid, cross-validation settings, the feature table and the
// optional collaborators of a run.
//
//	search {
//	  objectives   = ["Dice", "Hausdorff"]
//	  refit        = "Dice"
//	  folds        = 3
//	  seed         = 42
//	  unit_timeout = "10m"
//	}
//
//	data {
//	  path = "features.csv"
//	}
//
//	grid {
//	  n_estimators = [50, 100, 200]
//	  max_depth    = [10, 20, null]
//	}
//
// Unknown attributes and blocks are rejected.
package gridfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/dataset"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"github.com/specialistvlad/segmentgridgo/internal/progress"
	"github.com/specialistvlad/segmentgridgo/internal/search"
)

// ErrInvalidFile is wrapped by every load failure caused by file content.
var ErrInvalidFile = errors.New("invalid search file")

// Defaults applied when the search block omits a setting.
const (
	DefaultFolds     = 3
	DefaultSeed      = 42
	DefaultOutputDir = "results"
)

// DefaultObjectives are evaluated when the search block lists none.
var DefaultObjectives = []objective.Name{objective.Dice, objective.Hausdorff}

// File is a decoded search definition.
type File struct {
	Path     string
	Settings search.Settings
	Grid     search.Grid
	Data     Data
	Output   Output
	Trainer  string                   // remote trainer address, empty for in-process training
	Progress *progress.SocketIOConfig // nil when progress publishing is off
	Ledger   string                   // ledger database path, empty when off
}

// Data locates the feature table.
type Data struct {
	Path    string
	Options dataset.Options
}

// Output controls where artifacts go.
type Output struct {
	Dir       string
	UploadURL string
}

type root struct {
	Search   *searchBlock   `hcl:"search,block"`
	Data     *dataBlock     `hcl:"data,block"`
	Grid     *gridBlock     `hcl:"grid,block"`
	Output   *outputBlock   `hcl:"output,block"`
	Trainer  *trainerBlock  `hcl:"trainer,block"`
	Progress *progressBlock `hcl:"progress,block"`
	Ledger   *ledgerBlock   `hcl:"ledger,block"`
}

type searchBlock struct {
	Objectives  []string `hcl:"objectives,optional"`
	Refit       string   `hcl:"refit,optional"`
	Folds       *int     `hcl:"folds,optional"`
	Seed        *int64   `hcl:"seed,optional"`
	Workers     int      `hcl:"workers,optional"`
	UnitTimeout string   `hcl:"unit_timeout,optional"`
}

type dataBlock struct {
	Path         string    `hcl:"path"`
	LabelColumn  string    `hcl:"label_column,optional"`
	CoordColumns *[]string `hcl:"coord_columns,optional"`
	Delimiter    string    `hcl:"delimiter,optional"`
}

type gridBlock struct {
	MaxDepth        hcl.Expression `hcl:"max_depth,optional"`
	MaxFeatures     hcl.Expression `hcl:"max_features,optional"`
	MinSamplesLeaf  hcl.Expression `hcl:"min_samples_leaf,optional"`
	MinSamplesSplit hcl.Expression `hcl:"min_samples_split,optional"`
	NEstimators     hcl.Expression `hcl:"n_estimators,optional"`
}

type outputBlock struct {
	Dir       string `hcl:"dir,optional"`
	UploadURL string `hcl:"upload_url,optional"`
}

type trainerBlock struct {
	Address string `hcl:"address"`
}

type progressBlock struct {
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	Event              string `hcl:"event,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
	ConnectTimeout     string `hcl:"connect_timeout,optional"`
}

type ledgerBlock struct {
	Path string `hcl:"path"`
}

// LoadFile reads and decodes the search file at path. Relative data, output
// and ledger paths are resolved against the file's directory.
func LoadFile(ctx context.Context, path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search file: %w", err)
	}
	f, err := Parse(ctx, src, path)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	f.Data.Path = resolve(base, f.Data.Path)
	f.Output.Dir = resolve(base, f.Output.Dir)
	if f.Ledger != "" {
		f.Ledger = resolve(base, f.Ledger)
	}
	return f, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Parse decodes a search file held in memory. filename is used in
// diagnostics only.
func Parse(ctx context.Context, src []byte, filename string) (*File, error) {
	logger := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %s", ErrInvalidFile, filename, diags.Error())
	}
	var r root
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &r); diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode %s: %s", ErrInvalidFile, filename, diags.Error())
	}

	f := &File{Path: filename}
	if err := r.translateSearch(f); err != nil {
		return nil, err
	}
	if err := r.translateData(f); err != nil {
		return nil, err
	}
	if r.Grid == nil {
		return nil, fmt.Errorf("%w: missing grid block", ErrInvalidFile)
	}
	grid, err := r.Grid.translate(ctx)
	if err != nil {
		return nil, err
	}
	if grid.Size() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, search.ErrEmptyGrid)
	}
	f.Grid = grid

	f.Output.Dir = DefaultOutputDir
	if r.Output != nil {
		if r.Output.Dir != "" {
			f.Output.Dir = r.Output.Dir
		}
		f.Output.UploadURL = r.Output.UploadURL
	}
	if r.Trainer != nil {
		f.Trainer = r.Trainer.Address
	}
	if r.Ledger != nil {
		f.Ledger = r.Ledger.Path
	}
	if r.Progress != nil {
		cfg := &progress.SocketIOConfig{
			URL:                r.Progress.URL,
			Namespace:          r.Progress.Namespace,
			Event:              r.Progress.Event,
			InsecureSkipVerify: r.Progress.InsecureSkipVerify,
		}
		if cfg.ConnectTimeout, err = parseDuration("progress.connect_timeout", r.Progress.ConnectTimeout); err != nil {
			return nil, err
		}
		f.Progress = cfg
	}

	logger.Debug("Search file loaded.", "path", filename, "model.configurations", f.Grid.Size(),
		"cv.folds", f.Settings.Folds, "search.refit", f.Settings.Refit)
	return f, nil
}

func (r *root) translateSearch(f *File) error {
	f.Settings = search.Settings{
		Objectives: slices.Clone(DefaultObjectives),
		Refit:      objective.Dice,
		Folds:      DefaultFolds,
		Seed:       DefaultSeed,
	}
	b := r.Search
	if b == nil {
		return nil
	}
	if b.Objectives != nil {
		if len(b.Objectives) == 0 {
			return fmt.Errorf("%w: search.objectives must not be empty", ErrInvalidFile)
		}
		f.Settings.Objectives = make([]objective.Name, len(b.Objectives))
		for i, o := range b.Objectives {
			f.Settings.Objectives[i] = objective.Name(o)
		}
	}
	for _, o := range f.Settings.Objectives {
		if _, err := objective.GreaterIsBetter(o); err != nil {
			return fmt.Errorf("%w: search.objectives: %v", ErrInvalidFile, err)
		}
	}
	if b.Refit != "" {
		f.Settings.Refit = objective.Name(b.Refit)
	}
	if b.Folds != nil {
		f.Settings.Folds = *b.Folds
	}
	if b.Seed != nil {
		f.Settings.Seed = *b.Seed
	}
	if b.Workers < 0 {
		return fmt.Errorf("%w: search.workers must not be negative", ErrInvalidFile)
	}
	f.Settings.Workers = b.Workers
	var err error
	f.Settings.UnitTimeout, err = parseDuration("search.unit_timeout", b.UnitTimeout)
	return err
}

func (r *root) translateData(f *File) error {
	b := r.Data
	if b == nil {
		return fmt.Errorf("%w: missing data block", ErrInvalidFile)
	}
	if b.Path == "" {
		return fmt.Errorf("%w: data.path must not be empty", ErrInvalidFile)
	}
	f.Data.Path = b.Path
	f.Data.Options.LabelColumn = b.LabelColumn
	if b.CoordColumns != nil {
		f.Data.Options.CoordColumns = *b.CoordColumns
		if f.Data.Options.CoordColumns == nil {
			f.Data.Options.CoordColumns = []string{}
		}
	}
	if b.Delimiter != "" {
		d, size := utf8.DecodeRuneInString(b.Delimiter)
		if size != len(b.Delimiter) {
			return fmt.Errorf("%w: data.delimiter must be a single character, got %q", ErrInvalidFile, b.Delimiter)
		}
		f.Data.Options.Delimiter = d
	}
	return nil
}

func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s: invalid duration %q", ErrInvalidFile, name, s)
	}
	return d, nil
}
