package search

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrTooFewFolds is returned when fewer than two folds are requested.
	ErrTooFewFolds = errors.New("at least 2 folds are required")
	// ErrTooFewSamples is returned when there are fewer samples than folds.
	ErrTooFewSamples = errors.New("fewer samples than folds")
)

// StratifiedFolds partitions sample indices into k disjoint validation folds.
// Samples are grouped by class (ascending label) and dealt round-robin in
// sample order, continuing the rotation across classes so fold sizes differ
// by at most one. Each fold is returned in ascending index order.
func StratifiedFolds(y []int, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewFolds, k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("%w: %d samples, %d folds", ErrTooFewSamples, len(y), k)
	}

	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	folds := make([][]int, k)
	next := 0
	for _, c := range classes {
		for _, i := range byClass[c] {
			folds[next] = append(folds[next], i)
			next = (next + 1) % k
		}
	}
	for _, f := range folds {
		slices.Sort(f)
	}
	return folds, nil
}

// complement returns the indices in [0, n) that are not in fold.
func complement(n int, fold []int) []int {
	out := make([]int, 0, n-len(fold))
	j := 0
	for i := 0; i < n; i++ {
		if j < len(fold) && fold[j] == i {
			j++
			continue
		}
		out = append(out, i)
	}
	return out
}
