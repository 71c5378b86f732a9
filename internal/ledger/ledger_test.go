package ledger

import (
	"context"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"github.com/specialistvlad/segmentgridgo/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func finishedRun(id string, started time.Time) *search.Result {
	best := forest.Params{NEstimators: 50, MaxDepth: forest.Depth(10), MaxFeatures: forest.FeaturesSqrt, MinSamplesSplit: 2, MinSamplesLeaf: 1}
	other := forest.Params{NEstimators: 100, MaxFeatures: forest.FeaturesSqrt, MinSamplesSplit: 2, MinSamplesLeaf: 1}
	res := &search.Result{
		RunID:      id,
		Refit:      objective.Dice,
		Objectives: []objective.Name{objective.Dice, objective.Hausdorff},
		Folds:      3,
		Seed:       42,
		StartedAt:  started,
		Duration:   2500 * time.Millisecond,
		Rows: []search.Row{
			{Config: 0, Rank: 1, Params: best, Scores: map[objective.Name]search.Score{
				objective.Dice:      {Mean: 0.9, Std: 0.01, ValidFolds: 3},
				objective.Hausdorff: {Mean: math.NaN(), Std: math.NaN(), ValidFolds: 0},
			}},
		},
		Failed: []search.Failure{{Config: 1, Params: other, Errors: []*search.UnitError{
			{Config: 1, Fold: 2, Err: io.ErrUnexpectedEOF},
		}}},
	}
	res.Best = &res.Rows[0]
	return res
}

func TestRecordAndRun_RoundTrip(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	l := tempLedger(t)
	id := NewRunID()
	started := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	// --- Act ---
	require.NoError(t, l.Record(context.Background(), finishedRun(id, started), "/results/doe_results_x"))
	got, err := l.Run(context.Background(), id)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, id, got.RunID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 2500*time.Millisecond, got.Duration)
	assert.Equal(t, objective.Dice, got.Refit)
	assert.Equal(t, []objective.Name{objective.Dice, objective.Hausdorff}, got.Objectives)
	assert.Equal(t, 2, got.Configurations)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, 0.9, got.BestScore)
	assert.Contains(t, got.BestParams, "n_estimators: 50")
	assert.Equal(t, "/results/doe_results_x", got.RunDir)

	require.Len(t, got.Scores, 2)
	assert.Equal(t, objective.Dice, got.Scores[0].Objective)
	assert.Equal(t, "10", got.Scores[0].Params[forest.ParamMaxDepth])
	assert.True(t, math.IsNaN(got.Scores[1].Mean))

	require.Len(t, got.Failures, 1)
	assert.Equal(t, 2, got.Failures[0].Fold)
	assert.Equal(t, "unexpected EOF", got.Failures[0].Error)
	assert.Equal(t, "None", got.Failures[0].Params[forest.ParamMaxDepth])
}

func TestRuns_NewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	l := tempLedger(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		require.NoError(t, l.Record(context.Background(), finishedRun(id, base.Add(time.Duration(i)*time.Hour)), ""))
	}

	all, err := l.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].RunID)
	assert.Equal(t, ids[0], all[2].RunID)

	two, err := l.Runs(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestRecord_NoBestAndDuplicate(t *testing.T) {
	t.Parallel()

	l := tempLedger(t)
	res := finishedRun(NewRunID(), time.Now())
	res.Rows, res.Best = nil, nil

	require.NoError(t, l.Record(context.Background(), res, ""))
	got, err := l.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.BestScore))
	assert.Empty(t, got.BestParams)

	require.Error(t, l.Record(context.Background(), res, ""))
	res.RunID = ""
	require.Error(t, l.Record(context.Background(), res, ""))
}

func TestRun_NotFound(t *testing.T) {
	t.Parallel()

	_, err := tempLedger(t).Run(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}
