// Package ranking discovers run reports below a result root and ranks them by
// one statistic of a (label, metric) pair.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/fsutil"
	"github.com/specialistvlad/segmentgridgo/internal/report"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidQuery is returned for structurally invalid queries.
var ErrInvalidQuery = errors.New("invalid ranking query")

// Query selects what to rank and which rank to return.
type Query struct {
	Root      string
	Metric    string
	Label     string
	Statistic string // defaults to MEAN
	Rank      int    // 1-based
}

// Row is one qualifying report.
type Row struct {
	Path  string
	Value float64
	Rank  int
}

// Diagnostic records a report or directory that was skipped because it could
// not be read.
type Diagnostic struct {
	Path string
	Err  error
}

// Result is the outcome of a ranking.
type Result struct {
	Query       Query
	Rows        []Row // every qualifying report, best first
	Selected    []Row // the row(s) at Query.Rank
	NoMatch     bool  // no qualifying report sits at Query.Rank
	Discovered  int
	Diagnostics []Diagnostic
}

// Engine ranks reports discovered through a report.Store.
type Engine struct {
	store    *report.Store
	fileName string
	workers  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithFileName changes the report file name searched for.
func WithFileName(name string) Option {
	return func(e *Engine) { e.fileName = name }
}

// WithWorkers bounds the number of reports parsed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates a ranking engine.
func New(store *report.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		fileName: report.DefaultFileName,
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type loaded struct {
	value float64
	ok    bool
	err   error
}

// FindBest ranks every report below q.Root by q.Statistic of (q.Label,
// q.Metric), descending, and selects the row at q.Rank. Reports lacking the
// triple are left out rather than ranked as zero; unreadable reports are
// skipped with a diagnostic.
func (e *Engine) FindBest(ctx context.Context, q Query) (*Result, error) {
	if q.Statistic == "" {
		q.Statistic = report.StatMean
	}
	if q.Rank < 1 {
		return nil, fmt.Errorf("%w: rank must be >= 1, got %d", ErrInvalidQuery, q.Rank)
	}
	if q.Metric == "" || q.Label == "" {
		return nil, fmt.Errorf("%w: metric and label are required", ErrInvalidQuery)
	}

	logger := ctxlog.FromContext(ctx).With("metric", q.Metric, "label", q.Label, "statistic", q.Statistic)

	var skipped []Diagnostic
	paths, err := e.store.Enumerator().Find(ctx, q.Root, e.fileName)
	var partial *fsutil.PartialError
	switch {
	case errors.As(err, &partial):
		for _, s := range partial.Skipped {
			logger.Warn("Skipping unreadable entry.", "path", s.Path, "error", s.Err)
			skipped = append(skipped, Diagnostic{Path: s.Path, Err: s.Err})
		}
	case err != nil:
		return nil, fmt.Errorf("discover reports under %s: %w", q.Root, err)
	}
	logger.Debug("Reports discovered.", "root", q.Root, "count", len(paths))

	// Each report lands in its own slot, so the outcome does not depend on
	// which goroutine finishes first.
	slots := make([]loaded, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := e.store.Load(gctx, p)
			if err != nil {
				slots[i] = loaded{err: err}
				return nil
			}
			v, ok := rep.Filter(q.Label, q.Metric, q.Statistic)
			slots[i] = loaded{value: v, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Query: q, Discovered: len(paths), Diagnostics: skipped}
	for i, s := range slots {
		switch {
		case s.err != nil:
			logger.Warn("Skipping unreadable report.", "path", paths[i], "error", s.err)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Path: paths[i], Err: s.err})
		case s.ok:
			res.Rows = append(res.Rows, Row{Path: paths[i], Value: s.value})
		}
	}

	// NaN values rank after every number.
	sort.SliceStable(res.Rows, func(a, b int) bool {
		va, vb := res.Rows[a].Value, res.Rows[b].Value
		return !math.IsNaN(va) && (math.IsNaN(vb) || va > vb)
	})
	for i := range res.Rows {
		res.Rows[i].Rank = i + 1
		if res.Rows[i].Rank == q.Rank {
			res.Selected = append(res.Selected, res.Rows[i])
		}
	}
	res.NoMatch = len(res.Selected) == 0

	logger.Info("Ranking complete.", "qualifying", len(res.Rows), "skipped", len(res.Diagnostics), "no_match", res.NoMatch)
	return res, nil
}
