package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/segmentgridgo/internal/ranking"
	"github.com/specialistvlad/segmentgridgo/internal/report"
)

// runRank ranks every report below the root and prints the report(s) at the
// requested rank. An empty selection is reported, not treated as a failure.
func (a *App) runRank(ctx context.Context) error {
	cfg := a.config.Rank
	engine := ranking.New(report.NewStore(a.enumerator))
	res, err := engine.FindBest(ctx, ranking.Query{
		Root:      cfg.Root,
		Metric:    cfg.Metric,
		Label:     cfg.Label,
		Statistic: cfg.Statistic,
		Rank:      cfg.Rank,
	})
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(a.outW, "skipped %s: %v\n", d.Path, d.Err)
	}
	if res.NoMatch {
		fmt.Fprintf(a.outW, "No report at rank %d: %d of %d reports have %s/%s/%s.\n",
			cfg.Rank, len(res.Rows), res.Discovered, res.Query.Label, res.Query.Metric, res.Query.Statistic)
		return nil
	}
	if err := ranking.WriteCSV(a.outW, res.Query.Statistic, res.Selected); err != nil {
		return err
	}
	if cfg.OutputDir == "" {
		return nil
	}
	path, err := ranking.Save(cfg.OutputDir, res, a.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.outW, "Ranking saved: %s\n", path)
	return nil
}
