// Package compare aligns two run reports on (label, metric) for one
// statistic and computes how each value moved between the runs.
package compare

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/report"
)

// Row holds both runs' values for one (label, metric) pair.
// Difference is always ValueB - ValueA: positive means the second run scored
// higher.
type Row struct {
	Label      string
	Metric     string
	ValueA     float64
	ValueB     float64
	Difference float64
}

// Result is the aligned view of two reports.
type Result struct {
	SourceA   string
	SourceB   string
	Statistic string
	Rows      []Row
}

// Compare joins a and b on (label, metric) at the given statistic. Only pairs
// present in both reports are kept; runs may add or drop label categories and
// those pairs are omitted without error. Rows follow a's order.
func Compare(a, b *report.Report, statistic string) *Result {
	if statistic == "" {
		statistic = report.StatMean
	}
	res := &Result{SourceA: a.Source, SourceB: b.Source, Statistic: statistic}
	for _, ra := range a.Rows(statistic) {
		vb, ok := b.Filter(ra.Label, ra.Metric, statistic)
		if !ok {
			continue
		}
		res.Rows = append(res.Rows, Row{
			Label:      ra.Label,
			Metric:     ra.Metric,
			ValueA:     ra.Value,
			ValueB:     vb,
			Difference: vb - ra.Value,
		})
	}
	return res
}

// CompareRuns resolves two run directories below root by name, the way result
// folders are addressed by their timestamp, and compares their summaries.
func CompareRuns(ctx context.Context, store *report.Store, root, runA, runB, statistic string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	load := func(run string) (*report.Report, error) {
		p := filepath.Join(root, run, report.DefaultFileName)
		rep, err := store.Load(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", run, err)
		}
		return rep, nil
	}

	a, err := load(runA)
	if err != nil {
		return nil, err
	}
	b, err := load(runB)
	if err != nil {
		return nil, err
	}

	res := Compare(a, b, statistic)
	logger.Info("Runs compared.", "run_a", runA, "run_b", runB, "statistic", res.Statistic, "pairs", len(res.Rows))
	return res, nil
}

// WriteCSV writes LABEL;METRIC;VALUE_A;VALUE_B;DIFFERENCE.
func (r *Result) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = report.DefaultDelimiter
	if err := cw.Write([]string{"LABEL", "METRIC", "VALUE_A", "VALUE_B", "DIFFERENCE"}); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := cw.Write([]string{
			row.Label,
			row.Metric,
			formatFloat(row.ValueA),
			formatFloat(row.ValueB),
			formatFloat(row.Difference),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
