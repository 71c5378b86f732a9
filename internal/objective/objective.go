// Package objective turns a predicted and a ground-truth label volume into a
// named segmentation score usable as a cross-validation objective.
//
// Scores are derived from 3D label overlap and boundary distance rather than
// plain classification accuracy. Every function in this package is pure and
// safe to call from concurrent folds.
package objective

import (
	"errors"
	"fmt"
	"sort"
)

// Name identifies an objective.
type Name string

// Supported objectives.
const (
	Dice      Name = "Dice"
	Jaccard   Name = "Jaccard"
	Hausdorff Name = "Hausdorff"
)

// Background is the label excluded from overlap and distance computations.
const Background = 0

var (
	// ErrShapeMismatch is returned when predicted and ground truth differ in size.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnknownObjective is returned for names without an evaluation routine.
	ErrUnknownObjective = errors.New("unknown objective")
	// ErrNoPositives is returned when the score is undefined for the inputs,
	// e.g. the fold holds no foreground voxels.
	ErrNoPositives = errors.New("no foreground voxels to score")
)

type routine struct {
	greaterIsBetter bool
	eval            func(predicted, truth Volume) (float64, error)
}

var routines = map[Name]routine{
	Dice:      {greaterIsBetter: true, eval: dice},
	Jaccard:   {greaterIsBetter: true, eval: jaccard},
	Hausdorff: {greaterIsBetter: false, eval: hausdorff},
}

// Score evaluates the named objective.
func Score(name Name, predicted, truth Volume) (float64, error) {
	r, ok := routines[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownObjective, name)
	}
	if err := checkShapes(predicted, truth); err != nil {
		return 0, err
	}
	return r.eval(predicted, truth)
}

// GreaterIsBetter reports the polarity of the named objective.
func GreaterIsBetter(name Name) (bool, error) {
	r, ok := routines[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownObjective, name)
	}
	return r.greaterIsBetter, nil
}

// Supported lists the objective names in alphabetical order.
func Supported() []Name {
	names := make([]Name, 0, len(routines))
	for n := range routines {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Scorer is the capability the search loop depends on.
type Scorer interface {
	Score(name Name, predicted, truth Volume) (float64, error)
	GreaterIsBetter(name Name) (bool, error)
}

// Adapter implements Scorer with the built-in routines.
type Adapter struct{}

// Score implements Scorer.
func (Adapter) Score(name Name, predicted, truth Volume) (float64, error) {
	return Score(name, predicted, truth)
}

// GreaterIsBetter implements Scorer.
func (Adapter) GreaterIsBetter(name Name) (bool, error) {
	return GreaterIsBetter(name)
}
