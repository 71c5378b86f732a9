package forest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns two well separated clusters labelled 1 and 2.
func blobs() ([][]float64, []int) {
	var X [][]float64
	var y []int
	for i := 0; i < 20; i++ {
		d := float64(i%5) * 0.1
		X = append(X, []float64{d, 1 - d, 0.5})
		y = append(y, 1)
		X = append(X, []float64{5 + d, 6 - d, 0.5})
		y = append(y, 2)
	}
	return X, y
}

func TestFit_SeparatesClusters(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	X, y := blobs()
	p := DefaultParams()
	p.NEstimators = 10
	p.MaxFeatures = FeaturesAll
	c, err := New(p, 42)
	require.NoError(t, err)

	// --- Act ---
	f, err := c.Fit(context.Background(), X, y)
	require.NoError(t, err)
	got, err := f.Predict(context.Background(), [][]float64{{0.2, 0.8, 0.5}, {5.2, 5.8, 0.5}})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, []int{1, 2}, f.Classes())
	assert.Equal(t, 10, f.Trees())
}

func TestFit_DeterministicForSeed(t *testing.T) {
	t.Parallel()

	X, y := blobs()
	X = append(X, []float64{2.5, 3.5, 0.5}, []float64{2.6, 3.4, 0.5})
	y = append(y, 2, 1)
	p := Params{NEstimators: 15, MaxFeatures: FeaturesLog2, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxDepth: Depth(3)}

	predict := func() []int {
		c, err := New(p, 7)
		require.NoError(t, err)
		f, err := c.Fit(context.Background(), X, y)
		require.NoError(t, err)
		out, err := f.Predict(context.Background(), X)
		require.NoError(t, err)
		return out
	}

	first, second := predict(), predict()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("predictions differ between identical fits (-first +second):\n%s", diff)
	}
}

func TestFit_SingleClass(t *testing.T) {
	t.Parallel()

	c, err := New(DefaultParams(), 1)
	require.NoError(t, err)
	f, err := c.Fit(context.Background(), [][]float64{{1}, {2}, {3}}, []int{4, 4, 4})
	require.NoError(t, err)

	got, err := f.Predict(context.Background(), [][]float64{{10}})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got)
}

func TestFit_InvalidInput(t *testing.T) {
	t.Parallel()

	c, err := New(DefaultParams(), 1)
	require.NoError(t, err)

	testCases := []struct {
		name string
		X    [][]float64
		y    []int
		want error
	}{
		{name: "empty", want: ErrEmptyTrainingSet},
		{name: "label count", X: [][]float64{{1}, {2}}, y: []int{1}, want: ErrDimensionMismatch},
		{name: "ragged rows", X: [][]float64{{1, 2}, {2}}, y: []int{1, 2}, want: ErrDimensionMismatch},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.Fit(context.Background(), tc.X, tc.y)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFit_HonorsCancellation(t *testing.T) {
	t.Parallel()

	X, y := blobs()
	c, err := New(DefaultParams(), 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Fit(ctx, X, y)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestPredict_WidthMismatch(t *testing.T) {
	t.Parallel()

	X, y := blobs()
	p := DefaultParams()
	p.NEstimators = 2
	c, err := New(p, 1)
	require.NoError(t, err)
	f, err := c.Fit(context.Background(), X, y)
	require.NoError(t, err)

	_, err = f.Predict(context.Background(), [][]float64{{1}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestParams_ValidateAndValues(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Params) {}},
		{name: "no trees", mutate: func(p *Params) { p.NEstimators = 0 }, wantErr: true},
		{name: "zero depth", mutate: func(p *Params) { p.MaxDepth = Depth(0) }, wantErr: true},
		{name: "split of one", mutate: func(p *Params) { p.MinSamplesSplit = 1 }, wantErr: true},
		{name: "leaf of zero", mutate: func(p *Params) { p.MinSamplesLeaf = 0 }, wantErr: true},
		{name: "bad features", mutate: func(p *Params) { p.MaxFeatures = "half" }, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultParams()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidParams)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseValues_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, p := range []Params{
		DefaultParams(),
		{NEstimators: 50, MaxDepth: Depth(10), MaxFeatures: FeaturesLog2, MinSamplesSplit: 5, MinSamplesLeaf: 2},
	} {
		got, err := ParseValues(p.Values())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParseValues(map[string]string{"criterion": "gini"})
	require.ErrorIs(t, err, ErrInvalidParams)
	_, err = ParseValues(map[string]string{ParamNEstimators: "many"})
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestParams_String(t *testing.T) {
	t.Parallel()

	p := Params{NEstimators: 50, MaxFeatures: FeaturesSqrt, MinSamplesSplit: 2, MinSamplesLeaf: 1}
	assert.Equal(t,
		"{max_depth: None, max_features: sqrt, min_samples_leaf: 1, min_samples_split: 2, n_estimators: 50}",
		p.String())
}
