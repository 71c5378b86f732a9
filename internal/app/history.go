package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/ledger"
)

// runHistory lists recorded runs, or prints one run in detail.
func (a *App) runHistory(ctx context.Context) error {
	cfg := a.config.History
	l, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer l.Close()

	if cfg.RunID != "" {
		d, err := l.Run(ctx, cfg.RunID)
		if err != nil {
			return err
		}
		return a.printRun(d)
	}

	runs, err := l.Runs(ctx, cfg.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.outW, "No runs recorded.")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{r.RunID, r.StartedAt.Format(time.DateTime), string(r.Refit),
			strconv.Itoa(r.Configurations), strconv.Itoa(r.Failed), score(r.BestScore), r.RunDir})
	}
	return writeTable(a.outW, []string{"RUN ID", "STARTED", "REFIT", "CONFIGS", "FAILED", "BEST SCORE", "DIR"}, rows)
}

func (a *App) printRun(d *ledger.RunDetail) error {
	fmt.Fprintf(a.outW, "Run:        %s\n", d.RunID)
	fmt.Fprintf(a.outW, "Started:    %s (%s)\n", d.StartedAt.Format(time.DateTime), d.Duration)
	fmt.Fprintf(a.outW, "Refit:      %s over %d folds, seed %d\n", d.Refit, d.Folds, d.Seed)
	fmt.Fprintf(a.outW, "Best:       %s = %s\n", paramsOrNone(d.BestParams), score(d.BestScore))
	fmt.Fprintf(a.outW, "Directory:  %s\n\n", d.RunDir)

	rows := make([][]string, 0, len(d.Scores))
	for _, s := range d.Scores {
		rows = append(rows, []string{strconv.Itoa(s.Rank), strconv.Itoa(s.Config), string(s.Objective),
			score(s.Mean), score(s.Std), strconv.Itoa(s.ValidFolds), describe(s.Params)})
	}
	if err := writeTable(a.outW, []string{"RANK", "CONFIG", "OBJECTIVE", "MEAN", "STD", "VALID", "PARAMS"}, rows); err != nil {
		return err
	}
	if len(d.Failures) == 0 {
		return nil
	}

	fmt.Fprintf(a.outW, "\n%d failed units:\n", len(d.Failures))
	rows = rows[:0]
	for _, f := range d.Failures {
		obj := string(f.Objective)
		if obj == "" {
			obj = "-"
		}
		rows = append(rows, []string{strconv.Itoa(f.Config), strconv.Itoa(f.Fold), obj, f.Error})
	}
	return writeTable(a.outW, []string{"CONFIG", "FOLD", "OBJECTIVE", "ERROR"}, rows)
}

// writeTable renders rows under headers as a bordered table.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(int, int) lipgloss.Style { return cell }).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func score(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func paramsOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func describe(values map[string]string) string {
	p, err := forest.ParseValues(values)
	if err != nil {
		return fmt.Sprint(values)
	}
	return p.String()
}
