// Package search evaluates a random forest hyperparameter grid under
// stratified k-fold cross-validation and selects the best configuration by a
// designated refit objective.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/dataset"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"github.com/specialistvlad/segmentgridgo/internal/progress"
)

var (
	// ErrRefitNotObjective is returned when the refit objective is not one of
	// the evaluated objectives.
	ErrRefitNotObjective = errors.New("refit objective is not among the objectives")
	// ErrNoObjectives is returned when no objective is requested.
	ErrNoObjectives = errors.New("no objectives")
	// ErrNoCoordinates is returned when a distance objective is requested for
	// a feature table without voxel coordinates.
	ErrNoCoordinates = errors.New("feature table has no voxel coordinates")
)

// Settings controls one search run.
type Settings struct {
	RunID       string
	Objectives  []objective.Name
	Refit       objective.Name
	Folds       int
	Seed        int64
	Workers     int           // defaults to runtime.NumCPU()
	UnitTimeout time.Duration // zero disables the per-unit timeout
}

// Orchestrator runs grid searches. It holds no per-run state and may run
// several searches concurrently.
type Orchestrator struct {
	factory   Factory
	scorer    objective.Scorer
	publisher progress.Publisher
	metrics   *Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFactory replaces the in-process random forest.
func WithFactory(f Factory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithScorer replaces the built-in objectives.
func WithScorer(s objective.Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithPublisher sends progress events to p.
func WithPublisher(p progress.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics records prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory:   ForestFactory,
		scorer:    objective.Adapter{},
		publisher: progress.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// validate checks the top-level inputs that make a run impossible and
// returns the refit polarity.
func (o *Orchestrator) validate(data *dataset.Dataset, s Settings) (bool, error) {
	if s.Folds < 2 {
		return false, fmt.Errorf("%w: got %d", ErrTooFewFolds, s.Folds)
	}
	if len(s.Objectives) == 0 {
		return false, ErrNoObjectives
	}
	for i, name := range s.Objectives {
		if slices.Contains(s.Objectives[:i], name) {
			return false, fmt.Errorf("objective %q listed twice", name)
		}
		if _, err := o.scorer.GreaterIsBetter(name); err != nil {
			return false, err
		}
	}
	if !slices.Contains(s.Objectives, s.Refit) {
		return false, fmt.Errorf("%w: %q not in %v", ErrRefitNotObjective, s.Refit, s.Objectives)
	}
	if err := data.Validate(); err != nil {
		return false, err
	}
	if slices.Contains(s.Objectives, objective.Hausdorff) && len(data.Coords) == 0 {
		return false, fmt.Errorf("%w: %s needs X, Y and Z columns", ErrNoCoordinates, objective.Hausdorff)
	}
	return o.scorer.GreaterIsBetter(s.Refit)
}

// Run evaluates every configuration of grid on every fold of data and ranks
// the configurations by the refit objective. Failures of single units are
// recorded in the result; only invalid inputs or cancellation of ctx fail
// the run.
func (o *Orchestrator) Run(ctx context.Context, data *dataset.Dataset, grid Grid, s Settings) (*Result, error) {
	greaterIsBetter, err := o.validate(data, s)
	if err != nil {
		return nil, err
	}
	configs, err := grid.Configurations()
	if err != nil {
		return nil, err
	}
	folds, err := StratifiedFolds(data.Y, s.Folds)
	if err != nil {
		return nil, err
	}
	if s.Workers <= 0 {
		s.Workers = runtime.NumCPU()
	}

	ctx = ctxlog.With(ctx, "run.id", s.RunID)
	logger := ctxlog.FromContext(ctx)
	startedAt := time.Now()

	splits := make([]split, len(folds))
	for k, f := range folds {
		splits[k] = split{train: data.Subset(complement(data.Len(), f)), valid: data.Subset(f)}
	}

	total := len(configs) * len(folds)
	logger.Info("Starting grid search.",
		"model.configurations", len(configs), "cv.folds", len(folds), "search.units", total,
		"data.samples", data.Len(), "data.features", data.Width(), "search.workers", s.Workers,
		"search.refit", s.Refit)
	o.publish(ctx, progress.Event{Kind: progress.KindStarted, RunID: s.RunID, Total: total})

	outcomes := make([]unitOutcome, total)
	units := make(chan unit, total)
	for c, p := range configs {
		for k := range folds {
			units <- unit{index: c*len(folds) + k, config: c, fold: k, params: p}
		}
	}
	close(units)

	var wg sync.WaitGroup
	var completed atomic.Int64
	workers := min(s.Workers, total)
	logger.Debug("Starting worker pool.", "workers", workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.worker(ctx, workerID, units, splits, s, outcomes, &completed, total)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search cancelled: %w", err)
	}

	res := &Result{
		RunID:      s.RunID,
		Refit:      s.Refit,
		Objectives: slices.Clone(s.Objectives),
		Folds:      len(folds),
		Seed:       s.Seed,
		StartedAt:  startedAt,
	}
	for c, p := range configs {
		row, failure := aggregate(c, p, s.Objectives, s.Refit, outcomes[c*len(folds):(c+1)*len(folds)])
		if failure != nil {
			logger.Warn("Configuration failed on every fold.", "model.params", p.String(), "errors", len(failure.Errors))
			res.Failed = append(res.Failed, *failure)
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	rank(res.Rows, s.Refit, greaterIsBetter)
	if len(res.Rows) > 0 {
		res.Best = &res.Rows[0]
	}
	res.Duration = time.Since(startedAt)
	o.metrics.observeRun(len(res.Rows), len(res.Failed))

	done := progress.Event{Kind: progress.KindFinished, RunID: s.RunID, Completed: total, Total: total, Elapsed: res.Duration}
	if res.Best != nil {
		done.Valid = true
		done.Best = res.Best.Params.String()
		done.BestScore = res.BestScore()
		logger.Info("Grid search finished.", "search.best", done.Best, "search.best_score", done.BestScore,
			"search.ranked", len(res.Rows), "search.failed", len(res.Failed), "duration", res.Duration)
	} else {
		logger.Error("Grid search finished without a viable configuration.", "search.failed", len(res.Failed))
	}
	o.publish(ctx, done)
	return res, nil
}

// worker drains the unit queue. Each outcome is written to the unit's own
// slot so aggregation never depends on completion order.
func (o *Orchestrator) worker(ctx context.Context, workerID int, units <-chan unit, splits []split, s Settings, outcomes []unitOutcome, completed *atomic.Int64, total int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for u := range units {
		unitLogger := logger.With("workerID", workerID, "model.config", u.config, "cv.fold", u.fold)
		if ctx.Err() != nil {
			outcomes[u.index] = unitOutcome{err: ctx.Err()}
			continue
		}

		start := time.Now()
		out := o.evaluate(ctx, u, splits[u.fold], s)
		elapsed := time.Since(start)
		outcomes[u.index] = out

		ev := progress.Event{
			Kind:      progress.KindUnit,
			RunID:     s.RunID,
			Config:    u.config,
			Fold:      u.fold,
			Completed: int(completed.Add(1)),
			Total:     total,
			Valid:     out.valid(),
			Elapsed:   elapsed,
		}
		switch {
		case out.err != nil:
			unitLogger.Warn("Unit failed.", "error", out.err)
			ev.Error = out.err.Error()
		case len(out.errs) > 0:
			unitLogger.Warn("Objective could not be scored.", "errors", len(out.errs))
			ev.Error = errors.Join(mapValues(out.errs, s.Objectives)...).Error()
		default:
			unitLogger.Debug("Unit evaluated.", "duration", elapsed)
		}
		o.metrics.observeUnit(ev.Valid, elapsed)
		o.publish(ctx, ev)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (o *Orchestrator) publish(ctx context.Context, ev progress.Event) {
	if err := o.publisher.Publish(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Debug("Progress event dropped.", "kind", ev.Kind, "error", err)
	}
}

func mapValues(errs map[objective.Name]error, order []objective.Name) []error {
	out := make([]error, 0, len(errs))
	for _, name := range order {
		if err, ok := errs[name]; ok {
			out = append(out, fmt.Errorf("%s: %w", name, err))
		}
	}
	return out
}
