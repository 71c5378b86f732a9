package search

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/segmentgridgo/internal/forest"
)

// ErrEmptyGrid is returned when a grid yields no configuration.
var ErrEmptyGrid = errors.New("configuration grid is empty")

// Grid lists candidate values per hyperparameter. A nil field is unset and
// contributes the estimator default; a non-nil empty field makes the grid
// empty. At least one field must be set.
type Grid struct {
	MaxDepth        []*int // nil element = unlimited depth
	MaxFeatures     []string
	MinSamplesLeaf  []int
	MinSamplesSplit []int
	NEstimators     []int
}

func (g Grid) isUnset() bool {
	return g.MaxDepth == nil && g.MaxFeatures == nil && g.MinSamplesLeaf == nil &&
		g.MinSamplesSplit == nil && g.NEstimators == nil
}

// Size returns the number of configurations the grid expands to.
func (g Grid) Size() int {
	if g.isUnset() {
		return 0
	}
	return count(g.MaxDepth) * count(g.MaxFeatures) * count(g.MinSamplesLeaf) *
		count(g.MinSamplesSplit) * count(g.NEstimators)
}

func count[T any](values []T) int {
	if values == nil {
		return 1
	}
	return len(values)
}

// Configurations expands the grid into its Cartesian product. Fields are
// iterated in alphabetical order of their parameter names with the last one
// (n_estimators) varying fastest, so the order is stable across runs. Every
// configuration is validated.
func (g Grid) Configurations() ([]forest.Params, error) {
	if g.Size() == 0 {
		return nil, ErrEmptyGrid
	}
	d := forest.DefaultParams()
	depths := candidates(g.MaxDepth, d.MaxDepth)
	features := candidates(g.MaxFeatures, d.MaxFeatures)
	leaves := candidates(g.MinSamplesLeaf, d.MinSamplesLeaf)
	splits := candidates(g.MinSamplesSplit, d.MinSamplesSplit)
	trees := candidates(g.NEstimators, d.NEstimators)

	out := make([]forest.Params, 0, g.Size())
	for _, depth := range depths {
		for _, mf := range features {
			for _, leaf := range leaves {
				for _, split := range splits {
					for _, n := range trees {
						p := forest.Params{
							NEstimators:     n,
							MaxDepth:        depth,
							MaxFeatures:     mf,
							MinSamplesSplit: split,
							MinSamplesLeaf:  leaf,
						}
						if err := p.Validate(); err != nil {
							return nil, fmt.Errorf("configuration %d: %w", len(out), err)
						}
						out = append(out, p)
					}
				}
			}
		}
	}
	return out, nil
}

func candidates[T any](values []T, def T) []T {
	if values == nil {
		return []T{def}
	}
	return values
}
