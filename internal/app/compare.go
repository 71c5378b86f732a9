package app

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/segmentgridgo/internal/compare"
	"github.com/specialistvlad/segmentgridgo/internal/report"
)

func (a *App) runCompare(ctx context.Context) error {
	cfg := a.config.Compare
	res, err := compare.CompareRuns(ctx, report.NewStore(a.enumerator), cfg.Root, cfg.RunA, cfg.RunB, cfg.Statistic)
	if err != nil {
		return err
	}
	if cfg.Output == "" {
		return res.WriteCSV(a.outW)
	}

	f, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to create comparison file: %w", err)
	}
	if err := res.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.outW, "Comparison saved: %s (%d pairs)\n", cfg.Output, len(res.Rows))
	return nil
}
