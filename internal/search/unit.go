package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/segmentgridgo/internal/dataset"
	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
)

// ErrUnitPanic wraps a panic recovered from an estimator.
var ErrUnitPanic = errors.New("unit panicked")

// split is the read-only train/validation pair of one fold, shared by every
// configuration.
type split struct {
	train *dataset.Dataset
	valid *dataset.Dataset
}

// unit is one (configuration, fold) pair.
type unit struct {
	index  int
	config int
	fold   int
	params forest.Params
}

// unitOutcome is what a worker writes into the unit's slot. err is set when
// the unit failed as a whole; errs holds per-objective scoring failures.
type unitOutcome struct {
	scores    map[objective.Name]float64
	errs      map[objective.Name]error
	err       error
	fitTime   time.Duration
	scoreTime time.Duration
}

func (o unitOutcome) value(name objective.Name) (float64, bool) {
	if o.err != nil || o.errs[name] != nil {
		return 0, false
	}
	v, ok := o.scores[name]
	return v, ok
}

func (o unitOutcome) valid() bool {
	return o.err == nil && len(o.errs) == 0
}

// guarded runs fn in its own goroutine and returns when fn does or ctx is
// done, whichever comes first. A panic in fn becomes ErrUnitPanic.
func guarded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrUnitPanic, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// evaluate fits one configuration on the training part of a fold, predicts
// the held-out part and scores every objective.
func (o *Orchestrator) evaluate(ctx context.Context, u unit, sp split, s Settings) unitOutcome {
	if s.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.UnitTimeout)
		defer cancel()
	}

	est, err := o.factory(u.params, s.Seed)
	if err != nil {
		return unitOutcome{err: fmt.Errorf("build estimator: %w", err)}
	}

	start := time.Now()
	model, err := guarded(ctx, func(ctx context.Context) (Model, error) {
		return est.Fit(ctx, sp.train.X, sp.train.Y)
	})
	fitTime := time.Since(start)
	if err != nil {
		return unitOutcome{err: fmt.Errorf("fit: %w", err), fitTime: fitTime}
	}

	start = time.Now()
	pred, err := guarded(ctx, func(ctx context.Context) ([]int, error) {
		return model.Predict(ctx, sp.valid.X)
	})
	if err != nil {
		return unitOutcome{err: fmt.Errorf("predict: %w", err), fitTime: fitTime}
	}

	out := unitOutcome{
		scores:  make(map[objective.Name]float64, len(s.Objectives)),
		fitTime: fitTime,
	}
	predicted := objective.Volume{Labels: pred, Coords: sp.valid.Coords}
	truth := objective.Volume{Labels: sp.valid.Y, Coords: sp.valid.Coords}
	for _, name := range s.Objectives {
		v, err := o.scorer.Score(name, predicted, truth)
		if errors.Is(err, objective.ErrShapeMismatch) {
			out.err = fmt.Errorf("score %s: %w", name, err)
			break
		}
		if err != nil {
			if out.errs == nil {
				out.errs = map[objective.Name]error{}
			}
			out.errs[name] = err
			continue
		}
		out.scores[name] = v
	}
	out.scoreTime = time.Since(start)
	return out
}
