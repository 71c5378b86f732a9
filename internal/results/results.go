// Package results persists search results to a timestamped run directory and
// reads them back.
package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"github.com/specialistvlad/segmentgridgo/internal/report"
	"github.com/specialistvlad/segmentgridgo/internal/search"
	"gopkg.in/yaml.v3"
)

// Artifact file names inside a run directory.
const (
	TableFile   = "grid_search_results.csv"
	BestYAML    = "best_params.yaml"
	BestText    = "best_params.txt"
	FailedFile  = "failed_configurations.csv"
	SummaryFile = report.DefaultFileName

	// DirPrefix starts every run directory name.
	DirPrefix = "doe_results_"
	// TimestampLayout formats the run directory timestamp.
	TimestampLayout = "2006-01-02-15-04-05"
	// SummaryLabel is the LABEL of the rows written to the run summary.
	SummaryLabel = "ALL"
)

// DirName returns the run directory name for a run started at now. The run id
// prefix keeps two runs started within the same second apart.
func DirName(now time.Time, runID string) string {
	name := DirPrefix + now.Format(TimestampLayout)
	if id := strings.ReplaceAll(runID, "-", ""); id != "" {
		name += "_" + id[:min(8, len(id))]
	}
	return name
}

// Write creates a new run directory below root and writes every artifact of
// res into it. It fails rather than overwrite an existing directory.
func Write(root string, res *search.Result, now time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create result root: %w", err)
	}
	dir := filepath.Join(root, DirName(now, res.RunID))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	artifacts := []artifact{
		{TableFile, func(w io.Writer) error { return WriteTable(w, res) }},
		{FailedFile, func(w io.Writer) error { return WriteFailed(w, res) }},
		{SummaryFile, func(w io.Writer) error { return WriteSummary(w, res) }},
	}
	if res.Best != nil {
		artifacts = append(artifacts,
			artifact{BestYAML, func(w io.Writer) error { return WriteBestYAML(w, res, now) }},
			artifact{BestText, func(w io.Writer) error { return WriteBestText(w, res) }},
		)
	}
	for _, a := range artifacts {
		if err := writeFile(filepath.Join(dir, a.name), a.write); err != nil {
			return dir, err
		}
	}
	return dir, nil
}

type artifact struct {
	name  string
	write func(io.Writer) error
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Column name helpers.
func rankColumn(refit objective.Name) string { return "rank_test_" + string(refit) }
func paramColumn(name string) string         { return "param_" + name }
func splitColumn(k int, obj objective.Name) string {
	return fmt.Sprintf("split%d_test_%s", k, obj)
}
func meanColumn(obj objective.Name) string  { return "mean_test_" + string(obj) }
func stdColumn(obj objective.Name) string   { return "std_test_" + string(obj) }
func validColumn(obj objective.Name) string { return "valid_folds_" + string(obj) }

const (
	fitTimeColumn   = "mean_fit_time"
	scoreTimeColumn = "mean_score_time"
)

// WriteTable writes one row per ranked configuration, best first.
func WriteTable(w io.Writer, res *search.Result) error {
	header := []string{rankColumn(res.Refit)}
	for _, name := range forest.ParamNames {
		header = append(header, paramColumn(name))
	}
	for _, obj := range res.Objectives {
		for k := 0; k < res.Folds; k++ {
			header = append(header, splitColumn(k, obj))
		}
		header = append(header, meanColumn(obj), stdColumn(obj), validColumn(obj))
	}
	header = append(header, fitTimeColumn, scoreTimeColumn)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range res.Rows {
		rec := []string{strconv.Itoa(row.Rank)}
		values := row.Params.Values()
		for _, name := range forest.ParamNames {
			rec = append(rec, values[name])
		}
		for _, obj := range res.Objectives {
			s := row.Scores[obj]
			for k := 0; k < res.Folds; k++ {
				rec = append(rec, formatFloat(s.Folds[k]))
			}
			rec = append(rec, formatFloat(s.Mean), formatFloat(s.Std), strconv.Itoa(s.ValidFolds))
		}
		rec = append(rec, formatFloat(row.MeanFitTime.Seconds()), formatFloat(row.MeanScoreTime.Seconds()))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFailed lists every error of every failed configuration.
func WriteFailed(w io.Writer, res *search.Result) error {
	header := []string{"config"}
	for _, name := range forest.ParamNames {
		header = append(header, paramColumn(name))
	}
	header = append(header, "fold", "objective", "error")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, f := range res.Failed {
		values := f.Params.Values()
		for _, e := range f.Errors {
			rec := []string{strconv.Itoa(f.Config)}
			for _, name := range forest.ParamNames {
				rec = append(rec, values[name])
			}
			fold := ""
			if e.Fold >= 0 {
				fold = strconv.Itoa(e.Fold)
			}
			rec = append(rec, fold, string(e.Objective), e.Err.Error())
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes the best configuration's objective means and standard
// deviations as a run report, so search runs can be ranked and compared like
// any other pipeline run.
func WriteSummary(w io.Writer, res *search.Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = report.DefaultDelimiter
	if err := cw.Write([]string{report.ColumnLabel, report.ColumnMetric, report.ColumnStatistic, report.ColumnValue}); err != nil {
		return err
	}
	if res.Best != nil {
		for _, obj := range res.Objectives {
			s := res.Best.Scores[obj]
			if s.ValidFolds == 0 {
				continue
			}
			metric := strings.ToUpper(string(obj))
			if err := cw.Write([]string{SummaryLabel, metric, report.StatMean, formatFloat(s.Mean)}); err != nil {
				return err
			}
			if err := cw.Write([]string{SummaryLabel, metric, report.StatStd, formatFloat(s.Std)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// BestRecord is the structured best-parameters file.
type BestRecord struct {
	RunID     string            `yaml:"run_id"`
	CreatedAt time.Time         `yaml:"created_at"`
	Refit     string            `yaml:"refit"`
	Score     float64           `yaml:"score"`
	Folds     int               `yaml:"folds"`
	Seed      int64             `yaml:"seed"`
	Params    map[string]string `yaml:"params"`
}

// Config decodes the recorded parameters.
func (b *BestRecord) Config() (forest.Params, error) {
	return forest.ParseValues(b.Params)
}

// WriteBestYAML writes the best configuration as YAML.
func WriteBestYAML(w io.Writer, res *search.Result, now time.Time) error {
	rec := BestRecord{
		RunID:     res.RunID,
		CreatedAt: now.UTC(),
		Refit:     string(res.Refit),
		Score:     res.BestScore(),
		Folds:     res.Folds,
		Seed:      res.Seed,
		Params:    res.Best.Params.Values(),
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	return enc.Close()
}

// ReadBestYAML reads a best-parameters file.
func ReadBestYAML(r io.Reader) (*BestRecord, error) {
	var rec BestRecord
	if err := yaml.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode best parameters: %w", err)
	}
	return &rec, nil
}

// WriteBestText writes the human readable best-parameters summary.
func WriteBestText(w io.Writer, res *search.Result) error {
	_, err := fmt.Fprintf(w, "Best Parameters: %s\nBest Score (%s): %s\n",
		res.Best.Params, res.Refit, formatFloat(res.BestScore()))
	return err
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
