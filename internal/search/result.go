package search

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"gonum.org/v1/gonum/stat"
)

// ErrAllFoldsFailed marks a configuration whose refit objective has no valid
// fold.
var ErrAllFoldsFailed = errors.New("all folds failed")

// UnitError is the failure of one (configuration, fold) unit, or of one
// objective within it.
type UnitError struct {
	Config    int
	Fold      int
	Objective objective.Name // empty when the whole unit failed
	Err       error
}

func (e *UnitError) Error() string {
	if e.Objective != "" {
		return fmt.Sprintf("config %d fold %d %s: %v", e.Config, e.Fold, e.Objective, e.Err)
	}
	return fmt.Sprintf("config %d fold %d: %v", e.Config, e.Fold, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Score aggregates one objective over the folds of one configuration.
type Score struct {
	Folds      []float64 // per fold, NaN where the fold is invalid
	Mean       float64   // NaN when no fold is valid
	Std        float64   // population standard deviation
	ValidFolds int
}

// Row is one ranked configuration.
type Row struct {
	Config        int // position in grid order
	Params        forest.Params
	Scores        map[objective.Name]Score
	MeanFitTime   time.Duration
	MeanScoreTime time.Duration
	Rank          int
	Errors        []*UnitError // invalid folds or objectives, if any
}

// RefitScore returns the mean of the refit objective.
func (r Row) RefitScore(refit objective.Name) float64 {
	return r.Scores[refit].Mean
}

// Failure is a configuration excluded from ranking.
type Failure struct {
	Config int
	Params forest.Params
	Errors []*UnitError
}

// Result is the immutable outcome of a search run.
type Result struct {
	RunID      string
	Refit      objective.Name
	Objectives []objective.Name
	Folds      int
	Seed       int64
	Rows       []Row // ranked, best first
	Failed     []Failure
	Best       *Row // nil when every configuration failed
	StartedAt  time.Time
	Duration   time.Duration
}

// BestScore returns the refit mean of the best configuration, or NaN.
func (r *Result) BestScore() float64 {
	if r.Best == nil {
		return math.NaN()
	}
	return r.Best.RefitScore(r.Refit)
}

// aggregate folds the unit outcomes of one configuration. outcomes holds one
// entry per fold.
func aggregate(config int, p forest.Params, objectives []objective.Name, refit objective.Name, outcomes []unitOutcome) (Row, *Failure) {
	row := Row{Config: config, Params: p, Scores: make(map[objective.Name]Score, len(objectives))}
	var fit, score time.Duration
	fitted := 0

	for fold, out := range outcomes {
		if out.err != nil {
			row.Errors = append(row.Errors, &UnitError{Config: config, Fold: fold, Err: out.err})
			continue
		}
		fit += out.fitTime
		score += out.scoreTime
		fitted++
		for _, name := range objectives {
			if err := out.errs[name]; err != nil {
				row.Errors = append(row.Errors, &UnitError{Config: config, Fold: fold, Objective: name, Err: err})
			}
		}
	}
	if fitted > 0 {
		row.MeanFitTime = fit / time.Duration(fitted)
		row.MeanScoreTime = score / time.Duration(fitted)
	}

	for _, name := range objectives {
		s := Score{Folds: make([]float64, len(outcomes)), Mean: math.NaN(), Std: math.NaN()}
		var valid []float64
		for fold, out := range outcomes {
			v, ok := out.value(name)
			if !ok {
				s.Folds[fold] = math.NaN()
				continue
			}
			s.Folds[fold] = v
			valid = append(valid, v)
		}
		s.ValidFolds = len(valid)
		if len(valid) > 0 {
			s.Mean, s.Std = stat.PopMeanStdDev(valid, nil)
		}
		row.Scores[name] = s
	}

	if row.Scores[refit].ValidFolds == 0 {
		errs := row.Errors
		if len(errs) == 0 {
			errs = []*UnitError{{Config: config, Fold: -1, Objective: refit, Err: ErrAllFoldsFailed}}
		}
		return Row{}, &Failure{Config: config, Params: p, Errors: errs}
	}
	return row, nil
}

// rank orders rows by the refit mean, best first, keeping grid order among
// equal scores, and assigns ranks 1..n.
func rank(rows []Row, refit objective.Name, greaterIsBetter bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].RefitScore(refit), rows[j].RefitScore(refit)
		if greaterIsBetter {
			return a > b
		}
		return a < b
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}
