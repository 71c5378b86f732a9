// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

var (
	// ErrEmptyTrainingSet is returned when Fit receives no samples.
	ErrEmptyTrainingSet = errors.New("empty training set")
	// ErrDimensionMismatch is returned when rows and labels disagree in length
	// or rows disagree in width.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Classifier is an untrained random forest.
type Classifier struct {
	params Params
	seed   int64
}

// New validates p and returns a Classifier seeded with seed.
func New(p Params, seed int64) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{params: p, seed: seed}, nil
}

// Params returns the configuration the classifier was built with.
func (c *Classifier) Params() Params { return c.params }

// Forest is a trained ensemble.
type Forest struct {
	classes  []int
	features int
	trees    []tree
}

// Fit grows NEstimators trees on bootstrap samples of (X, y). The context is
// checked between trees so a cancelled unit stops promptly.
func (c *Classifier) Fit(ctx context.Context, X [][]float64, y []int) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrDimensionMismatch, len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), width)
		}
	}

	classes := slices.Clone(y)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	encoded := make([]int, len(y))
	for i, label := range y {
		encoded[i], _ = slices.BinarySearch(classes, label)
	}

	master := rand.New(rand.NewPCG(uint64(c.seed), 0x9e3779b97f4a7c15))
	b := &builder{
		x:       X,
		y:       encoded,
		classes: len(classes),
		mtry:    featureCount(c.params.MaxFeatures, width),
		params:  c.params,
	}

	f := &Forest{classes: classes, features: width, trees: make([]tree, 0, c.params.NEstimators)}
	for t := 0; t < c.params.NEstimators; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.rng = rand.New(rand.NewPCG(master.Uint64(), master.Uint64()))
		sample := make([]int, len(X))
		for i := range sample {
			sample[i] = b.rng.IntN(len(X))
		}
		f.trees = append(f.trees, b.grow(sample))
	}
	return f, nil
}

// Predict returns the class with the highest averaged leaf probability for
// every row. Ties go to the smallest class label.
func (f *Forest) Predict(ctx context.Context, X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	proba := make([]float64, len(f.classes))
	for i, row := range X {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(row) != f.features {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), f.features)
		}
		clear(proba)
		for _, t := range f.trees {
			for k, p := range t.leaf(row) {
				proba[k] += p
			}
		}
		best := 0
		for k := 1; k < len(proba); k++ {
			if proba[k] > proba[best] {
				best = k
			}
		}
		out[i] = f.classes[best]
	}
	return out, nil
}

// Classes returns the sorted class labels seen during Fit.
func (f *Forest) Classes() []int { return slices.Clone(f.classes) }

// Trees returns the ensemble size.
func (f *Forest) Trees() int { return len(f.trees) }

func featureCount(strategy string, width int) int {
	var n int
	switch strategy {
	case FeaturesSqrt:
		n = int(math.Sqrt(float64(width)))
	case FeaturesLog2:
		n = int(math.Log2(float64(width)))
	default:
		n = width
	}
	return max(1, min(n, width))
}
