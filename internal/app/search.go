package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/dataset"
	"github.com/specialistvlad/segmentgridgo/internal/fsutil"
	"github.com/specialistvlad/segmentgridgo/internal/gridfile"
	"github.com/specialistvlad/segmentgridgo/internal/ledger"
	"github.com/specialistvlad/segmentgridgo/internal/progress"
	"github.com/specialistvlad/segmentgridgo/internal/results"
	"github.com/specialistvlad/segmentgridgo/internal/search"
	"github.com/specialistvlad/segmentgridgo/internal/trainer"
)

// runSearch runs the search file, or every .hcl file of a directory in
// lexical order. A failing file does not stop the ones after it.
func (a *App) runSearch(ctx context.Context) error {
	path := a.config.Search.File
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read search file: %w", err)
	}
	if !info.IsDir() {
		return a.searchFile(ctx, path)
	}

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	var partial *fsutil.PartialError
	switch {
	case errors.As(err, &partial):
		for _, s := range partial.Skipped {
			ctxlog.FromContext(ctx).Warn("Skipping unreadable entry.", "path", s.Path, "error", s.Err)
		}
	case err != nil:
		return fmt.Errorf("failed to list search files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no .hcl search files in %s", path)
	}
	ctxlog.FromContext(ctx).Info("Running search files.", "dir", path, "count", len(files))
	var errs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := a.searchFile(ctx, file); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
		}
	}
	return errors.Join(errs...)
}

// searchFile loads one search file, runs the grid search and persists every
// artifact of the run. A run in which no configuration survived is still
// written out before the command fails.
func (a *App) searchFile(ctx context.Context, path string) error {
	f, err := gridfile.LoadFile(ctx, path)
	if err != nil {
		return err
	}
	if a.config.Search.Workers > 0 {
		f.Settings.Workers = a.config.Search.Workers
	}
	f.Settings.RunID = ledger.NewRunID()
	ctx = ctxlog.With(ctx, "run.id", f.Settings.RunID)
	logger := ctxlog.FromContext(ctx)

	data, err := dataset.LoadFile(f.Data.Path, f.Data.Options)
	if err != nil {
		return err
	}
	logger.Info("Feature table loaded.", "data.path", f.Data.Path, "data.samples", data.Len(),
		"data.features", data.Width(), "data.classes", len(data.Classes()))

	opts := []search.Option{search.WithMetrics(a.metrics)}
	if f.Trainer != "" {
		client, err := trainer.Dial(f.Trainer)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, search.WithFactory(client.Factory()))
		logger.Info("Training delegated to remote trainer.", "trainer.address", f.Trainer)
	}
	if f.Progress != nil {
		pub, err := progress.DialSocketIO(ctx, *f.Progress)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, search.WithPublisher(pub))
	}

	res, err := search.New(opts...).Run(ctx, data, f.Grid, f.Settings)
	if err != nil {
		return err
	}

	dir, err := results.Write(f.Output.Dir, res, a.now())
	if err != nil {
		return err
	}
	logger.Info("Results written.", "output.dir", dir)
	fmt.Fprintf(a.outW, "Results: %s\n", dir)

	if f.Output.UploadURL != "" {
		table := filepath.Join(dir, results.TableFile)
		if err := results.NewUploader(a.httpClient).Upload(ctx, table, f.Output.UploadURL); err != nil {
			return err
		}
	}
	if f.Ledger != "" {
		if err := a.record(ctx, f.Ledger, res, dir); err != nil {
			return err
		}
	}

	if res.Best == nil {
		return fmt.Errorf("%w: no configuration produced a valid %s score", search.ErrAllFoldsFailed, res.Refit)
	}
	return results.WriteBestText(a.outW, res)
}

func (a *App) record(ctx context.Context, path string, res *search.Result, dir string) error {
	l, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()
	if err := l.Record(ctx, res, dir); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Run recorded in ledger.", "ledger.path", path)
	return nil
}
