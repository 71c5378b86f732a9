// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package forest

import (
	"math/rand/v2"
	"slices"
)

// node is either a split (dist == nil) or a leaf holding class probabilities.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	dist      []float64
}

type tree struct {
	nodes []node
}

func (t tree) leaf(row []float64) []float64 {
	n := t.nodes[0]
	for n.dist == nil {
		if row[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
	}
	return n.dist
}

// builder holds the read-only training data shared by every tree of a Fit
// call plus the random source of the tree being grown.
type builder struct {
	x       [][]float64
	y       []int
	classes int
	mtry    int
	params  Params
	rng     *rand.Rand
}

func (b *builder) grow(sample []int) tree {
	t := &tree{}
	b.split(t, sample, 0)
	return *t
}

func (b *builder) split(t *tree, idx []int, depth int) int {
	at := len(t.nodes)
	t.nodes = append(t.nodes, node{})

	counts := make([]int, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	if b.isLeaf(idx, counts, depth) {
		t.nodes[at] = b.leafNode(counts, len(idx))
		return at
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		t.nodes[at] = b.leafNode(counts, len(idx))
		return at
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.split(t, left, depth+1)
	r := b.split(t, right, depth+1)
	t.nodes[at] = node{feature: feature, threshold: threshold, left: l, right: r}
	return at
}

func (b *builder) isLeaf(idx []int, counts []int, depth int) bool {
	if len(idx) < b.params.MinSamplesSplit || len(idx) < 2*b.params.MinSamplesLeaf {
		return true
	}
	if b.params.MaxDepth != nil && depth >= *b.params.MaxDepth {
		return true
	}
	for _, c := range counts {
		if c == len(idx) {
			return true
		}
	}
	return false
}

func (b *builder) leafNode(counts []int, n int) node {
	dist := make([]float64, len(counts))
	for k, c := range counts {
		dist[k] = float64(c) / float64(n)
	}
	return node{dist: dist}
}

// bestSplit scans mtry randomly chosen features and returns the threshold
// with the lowest weighted Gini impurity. Impurity is compared through
// sum(count^2)/size of each side, which grows as impurity falls.
func (b *builder) bestSplit(idx []int, counts []int) (int, float64, bool) {
	parent := 0.0
	for _, c := range counts {
		parent += float64(c * c)
	}
	bestScore := parent / float64(len(idx))
	bestFeature, bestThreshold, found := -1, 0.0, false

	width := len(b.x[0])
	candidates := b.rng.Perm(width)[:b.mtry]
	sorted := slices.Clone(idx)
	lc := make([]int, b.classes)
	rc := make([]int, b.classes)
	minLeaf := b.params.MinSamplesLeaf

	for _, f := range candidates {
		slices.SortStableFunc(sorted, func(i, j int) int {
			switch a, c := b.x[i][f], b.x[j][f]; {
			case a < c:
				return -1
			case a > c:
				return 1
			}
			return 0
		})
		clear(lc)
		copy(rc, counts)
		sumL, sumR := 0.0, parent
		for pos := 0; pos < len(sorted)-1; pos++ {
			k := b.y[sorted[pos]]
			sumL += float64(2*lc[k] + 1)
			sumR -= float64(2*rc[k] - 1)
			lc[k]++
			rc[k]--

			nl, nr := pos+1, len(sorted)-pos-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.x[sorted[pos]][f], b.x[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			score := sumL/float64(nl) + sumR/float64(nr)
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
