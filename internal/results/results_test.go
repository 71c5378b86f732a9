package results

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"github.com/specialistvlad/segmentgridgo/internal/report"
	"github.com/specialistvlad/segmentgridgo/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func score(folds ...float64) search.Score {
	s := search.Score{Folds: folds, Mean: math.NaN(), Std: math.NaN()}
	var sum float64
	for _, v := range folds {
		if !math.IsNaN(v) {
			sum += v
			s.ValidFolds++
		}
	}
	if s.ValidFolds > 0 {
		s.Mean = sum / float64(s.ValidFolds)
		s.Std = 0.05
	}
	return s
}

// sampleResult is a finished two-configuration search with one failure.
func sampleResult(refit objective.Name) *search.Result {
	fast := forest.Params{NEstimators: 50, MaxDepth: forest.Depth(10), MaxFeatures: forest.FeaturesSqrt, MinSamplesSplit: 2, MinSamplesLeaf: 1}
	deep := forest.Params{NEstimators: 100, MaxFeatures: forest.FeaturesLog2, MinSamplesSplit: 5, MinSamplesLeaf: 2}
	broken := forest.Params{NEstimators: 200, MaxFeatures: forest.FeaturesSqrt, MinSamplesSplit: 2, MinSamplesLeaf: 1}

	rows := []search.Row{
		{Config: 1, Params: deep, Scores: map[objective.Name]search.Score{
			objective.Dice: score(1, 0.75), objective.Hausdorff: score(2, 4),
		}, MeanFitTime: 1500 * time.Millisecond},
		{Config: 0, Params: fast, Scores: map[objective.Name]search.Score{
			objective.Dice: score(0.5, math.NaN()), objective.Hausdorff: score(1, math.NaN()),
		}},
	}
	if refit == objective.Hausdorff {
		rows[0], rows[1] = rows[1], rows[0]
	}
	rows[0].Rank, rows[1].Rank = 1, 2
	res := &search.Result{
		RunID:      "0f8e2c1a-7b4d-4c1e-9a55-0123456789ab",
		Refit:      refit,
		Objectives: []objective.Name{objective.Dice, objective.Hausdorff},
		Folds:      2,
		Seed:       42,
		Rows:       rows,
		Failed: []search.Failure{{Config: 2, Params: broken, Errors: []*search.UnitError{
			{Config: 2, Fold: 0, Err: io.ErrUnexpectedEOF},
			{Config: 2, Fold: 1, Objective: objective.Dice, Err: objective.ErrNoPositives},
		}}},
	}
	res.Best = &res.Rows[0]
	return res
}

func TestDirName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "doe_results_2024-03-09-14-05-07_0f8e2c1a", DirName(stamp, "0f8e2c1a-7b4d"))
	assert.Equal(t, "doe_results_2024-03-09-14-05-07", DirName(stamp, ""))
	assert.Equal(t, "doe_results_2024-03-09-14-05-07_abc", DirName(stamp, "abc"))
}

func TestWrite_CreatesArtifactsOnce(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := filepath.Join(t.TempDir(), "results")
	res := sampleResult(objective.Dice)

	// --- Act ---
	dir, err := Write(root, res, stamp)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "doe_results_2024-03-09-14-05-07_0f8e2c1a"), dir)
	for _, name := range []string{TableFile, BestYAML, BestText, FailedFile, SummaryFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	_, err = Write(root, res, stamp)
	require.ErrorIs(t, err, os.ErrExist)
}

func TestWrite_NoBestSkipsBestFiles(t *testing.T) {
	t.Parallel()

	res := sampleResult(objective.Dice)
	res.Rows, res.Best = nil, nil

	dir, err := Write(t.TempDir(), res, stamp)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, BestYAML))
	assert.FileExists(t, filepath.Join(dir, FailedFile))
}

func TestWriteTable_Layout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleResult(objective.Dice)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "rank_test_Dice,param_max_depth,param_max_features,param_min_samples_leaf,param_min_samples_split,param_n_estimators,"+
		"split0_test_Dice,split1_test_Dice,mean_test_Dice,std_test_Dice,valid_folds_Dice,"+
		"split0_test_Hausdorff,split1_test_Hausdorff,mean_test_Hausdorff,std_test_Hausdorff,valid_folds_Hausdorff,"+
		"mean_fit_time,mean_score_time", lines[0])
	assert.Equal(t, "1,None,log2,2,5,100,1,0.75,0.875,0.05,2,2,4,3,0.05,2,1.5,0", lines[1])
	assert.Equal(t, "2,10,sqrt,1,2,50,0.5,,0.5,0.05,1,1,,1,0.05,1,0,0", lines[2])
}

func TestTable_RoundTripReselectsBest(t *testing.T) {
	t.Parallel()

	for _, refit := range []objective.Name{objective.Dice, objective.Hausdorff} {
		t.Run(string(refit), func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			res := sampleResult(refit)
			dir, err := Write(t.TempDir(), res, stamp)
			require.NoError(t, err)

			// --- Act ---
			table, err := ReadTableFile(dir)
			require.NoError(t, err)
			best, err := table.Best(objective.Adapter{})

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, refit, table.Refit)
			assert.Equal(t, []objective.Name{objective.Dice, objective.Hausdorff}, table.Objectives)
			require.Len(t, table.Rows, 2)
			assert.Equal(t, res.Best.Params, best.Params)
			assert.Equal(t, 1, best.Rank)
			assert.InDelta(t, res.BestScore(), best.Means[refit], 1e-12)
		})
	}
}

func TestReadTable_Malformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		table string
	}{
		{name: "empty", table: ""},
		{name: "no rank", table: "param_n_estimators,mean_test_Dice\n50,0.5\n"},
		{name: "no refit mean", table: "rank_test_Dice,mean_test_Hausdorff\n1,2\n"},
		{name: "bad rank", table: "rank_test_Dice,mean_test_Dice\nfirst,0.5\n"},
		{name: "bad param", table: "rank_test_Dice,param_n_estimators,mean_test_Dice\n1,many,0.5\n"},
		{name: "bad mean", table: "rank_test_Dice,mean_test_Dice\n1,high\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadTable(strings.NewReader(tc.table))
			require.ErrorIs(t, err, ErrMalformedTable)
		})
	}
}

func TestBestYAML_RoundTrip(t *testing.T) {
	t.Parallel()

	res := sampleResult(objective.Dice)
	var buf bytes.Buffer
	require.NoError(t, WriteBestYAML(&buf, res, stamp))

	rec, err := ReadBestYAML(&buf)
	require.NoError(t, err)
	want := &BestRecord{
		RunID:     res.RunID,
		CreatedAt: stamp,
		Refit:     "Dice",
		Score:     0.875,
		Folds:     2,
		Seed:      42,
		Params:    res.Best.Params.Values(),
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("best record mismatch (-want +got):\n%s", diff)
	}
	p, err := rec.Config()
	require.NoError(t, err)
	assert.Equal(t, res.Best.Params, p)
}

func TestWriteBestText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteBestText(&buf, sampleResult(objective.Dice)))
	assert.Equal(t,
		"Best Parameters: {max_depth: None, max_features: log2, min_samples_leaf: 2, min_samples_split: 5, n_estimators: 100}\n"+
			"Best Score (Dice): 0.875\n",
		buf.String())
}

func TestWriteSummary_ReadableAsReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sampleResult(objective.Dice)))

	rep, err := report.Load(&buf, "summary")
	require.NoError(t, err)
	v, ok := rep.Filter(SummaryLabel, "DICE", report.StatMean)
	require.True(t, ok)
	assert.InDelta(t, 0.875, v, 1e-12)
	v, ok = rep.Filter(SummaryLabel, "HAUSDORFF", report.StatStd)
	require.True(t, ok)
	assert.InDelta(t, 0.05, v, 1e-12)
}

func TestWriteFailed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteFailed(&buf, sampleResult(objective.Dice)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "config,param_max_depth,param_max_features,param_min_samples_leaf,param_min_samples_split,param_n_estimators,fold,objective,error", lines[0])
	assert.Equal(t, "2,None,sqrt,1,2,200,0,,unexpected EOF", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2,None,sqrt,1,2,200,1,Dice,"))
}

func TestUpload(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var gotMethod, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotType = r.Method, r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	path := filepath.Join(t.TempDir(), TableFile)
	require.NoError(t, os.WriteFile(path, []byte("rank_test_Dice\n1\n"), 0o644))

	// --- Act ---
	err := NewUploader(srv.Client()).Upload(context.Background(), path, srv.URL+"/bucket/key?sig=abc")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "rank_test_Dice\n1\n", gotBody)
	assert.NotEmpty(t, gotType)
}

func TestUpload_Failures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	path := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := NewUploader(nil).Upload(context.Background(), path, srv.URL)
	require.ErrorContains(t, err, "403")

	err = NewUploader(nil).Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), srv.URL)
	require.ErrorIs(t, err, os.ErrNotExist)
}
