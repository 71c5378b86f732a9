package search

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_ConfigurationsOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	grid := Grid{NEstimators: []int{50, 100}, MaxDepth: []*int{forest.Depth(10), nil}}

	// --- Act ---
	configs, err := grid.Configurations()

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, 4, grid.Size())
	var got []string
	for _, p := range configs {
		got = append(got, p.String())
	}
	want := []string{
		"{max_depth: 10, max_features: sqrt, min_samples_leaf: 1, min_samples_split: 2, n_estimators: 50}",
		"{max_depth: 10, max_features: sqrt, min_samples_leaf: 1, min_samples_split: 2, n_estimators: 100}",
		"{max_depth: None, max_features: sqrt, min_samples_leaf: 1, min_samples_split: 2, n_estimators: 50}",
		"{max_depth: None, max_features: sqrt, min_samples_leaf: 1, min_samples_split: 2, n_estimators: 100}",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("configuration order mismatch (-want +got):\n%s", diff)
	}
}

func TestGrid_SeventyTwoConfigurations(t *testing.T) {
	t.Parallel()

	grid := Grid{
		NEstimators:     []int{50, 100, 200},
		MaxDepth:        []*int{forest.Depth(10), forest.Depth(20), nil},
		MaxFeatures:     []string{forest.FeaturesSqrt, forest.FeaturesLog2},
		MinSamplesSplit: []int{2, 5},
		MinSamplesLeaf:  []int{1, 2},
	}
	configs, err := grid.Configurations()
	require.NoError(t, err)
	assert.Len(t, configs, 72)
}

func TestGrid_Empty(t *testing.T) {
	t.Parallel()

	for _, g := range []Grid{{}, {MaxFeatures: []string{}}, {NEstimators: []int{1}, MinSamplesLeaf: []int{}}} {
		_, err := g.Configurations()
		require.ErrorIs(t, err, ErrEmptyGrid)
		assert.Zero(t, g.Size())
	}
}

func TestStratifiedFolds(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	y := []int{1, 1, 1, 0, 0, 0, 0}

	// --- Act ---
	folds, err := StratifiedFolds(y, 3)

	// --- Assert ---
	require.NoError(t, err)
	want := [][]int{{2, 3, 6}, {0, 4}, {1, 5}}
	if diff := cmp.Diff(want, folds); diff != "" {
		t.Errorf("folds mismatch (-want +got):\n%s", diff)
	}
}

func TestStratifiedFolds_Errors(t *testing.T) {
	t.Parallel()

	_, err := StratifiedFolds([]int{1, 2, 3}, 1)
	require.ErrorIs(t, err, ErrTooFewFolds)
	_, err = StratifiedFolds([]int{1, 2}, 3)
	require.ErrorIs(t, err, ErrTooFewSamples)
}

func TestComplement(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{0, 2, 3, 5}, complement(6, []int{1, 4}))
	assert.Equal(t, []int{}, complement(2, []int{0, 1}))
}

func TestRank_PolarityAndStability(t *testing.T) {
	t.Parallel()

	row := func(config int, v float64) Row {
		return Row{Config: config, Scores: map[objective.Name]Score{objective.Hausdorff: {Mean: v}}}
	}

	testCases := []struct {
		name            string
		greaterIsBetter bool
		want            []int
	}{
		{name: "minimize", greaterIsBetter: false, want: []int{1, 3, 0, 2}},
		{name: "maximize", greaterIsBetter: true, want: []int{0, 2, 1, 3}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rows := []Row{row(0, 4), row(1, 1), row(2, 4), row(3, 1)}
			rank(rows, objective.Hausdorff, tc.greaterIsBetter)
			var got []int
			for i, r := range rows {
				got = append(got, r.Config)
				assert.Equal(t, i+1, r.Rank)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAggregate_PopulationStd(t *testing.T) {
	t.Parallel()

	outcomes := []unitOutcome{
		{scores: map[objective.Name]float64{objective.Dice: 0.5}},
		{scores: map[objective.Name]float64{objective.Dice: 1.0}},
		{err: errDegenerate},
		{scores: map[objective.Name]float64{}, errs: map[objective.Name]error{objective.Dice: objective.ErrNoPositives}},
	}

	row, failure := aggregate(0, forest.DefaultParams(), []objective.Name{objective.Dice}, objective.Dice, outcomes)

	require.Nil(t, failure)
	s := row.Scores[objective.Dice]
	assert.Equal(t, 2, s.ValidFolds)
	assert.InDelta(t, 0.75, s.Mean, 1e-12)
	assert.InDelta(t, 0.25, s.Std, 1e-12)
	assert.True(t, math.IsNaN(s.Folds[2]))
	assert.True(t, math.IsNaN(s.Folds[3]))
	assert.Len(t, row.Errors, 2)
}
