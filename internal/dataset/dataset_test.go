package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithCoordinates(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	table := "X,Y,Z,T1,GRAD,LABEL\n" +
		"0,0,0,0.1,1.5,0\n" +
		"0,0,1,0.7,0.2,1\n" +
		"0,1,0,0.9,0.1,2\n"

	// --- Act ---
	d, err := Load(strings.NewReader(table), Options{})

	// --- Assert ---
	require.NoError(t, err)
	want := &Dataset{
		Features: []string{"T1", "GRAD"},
		X:        [][]float64{{0.1, 1.5}, {0.7, 0.2}, {0.9, 0.1}},
		Y:        []int{0, 1, 2},
		Coords:   [][3]float64{{0, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("dataset mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 2, d.Width())
	assert.Equal(t, []int{0, 1, 2}, d.Classes())
}

func TestLoad_WithoutCoordinatesCustomLabel(t *testing.T) {
	t.Parallel()

	table := "tissue;a;b\n1.0;1;2\n3;3;4\n"
	d, err := Load(strings.NewReader(table), Options{LabelColumn: "tissue", Delimiter: ';'})

	require.NoError(t, err)
	assert.Empty(t, d.Coords)
	assert.Equal(t, []int{1, 3}, d.Y)
	assert.Equal(t, []string{"a", "b"}, d.Features)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		table   string
		wantMsg string
	}{
		{name: "empty", table: "", wantMsg: "empty feature table"},
		{name: "no label column", table: "a,b\n1,2\n", wantMsg: "missing label column"},
		{name: "partial coordinates", table: "X,Y,a,LABEL\n0,0,1,1\n", wantMsg: "all present or all absent"},
		{name: "no rows", table: "a,LABEL\n", wantMsg: "no samples"},
		{name: "no features", table: "LABEL\n1\n", wantMsg: "no features"},
		{name: "fractional label", table: "a,LABEL\n1,1.5\n", wantMsg: "not an integer"},
		{name: "bad feature", table: "a,LABEL\nx,1\n", wantMsg: "not a number"},
		{name: "infinite feature", table: "a,LABEL\n+Inf,1\n", wantMsg: "not finite"},
		{name: "ragged row", table: "a,LABEL\n1,1,7\n", wantMsg: "line 2"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(strings.NewReader(tc.table), Options{})
			require.ErrorIs(t, err, ErrInvalidDataset)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestSubset_SharesRows(t *testing.T) {
	t.Parallel()

	d := &Dataset{
		X:      [][]float64{{1}, {2}, {3}},
		Y:      []int{1, 2, 1},
		Coords: [][3]float64{{0, 0, 0}, {0, 0, 1}, {0, 0, 2}},
	}
	s := d.Subset([]int{2, 0})

	assert.Equal(t, []int{1, 1}, s.Y)
	assert.Equal(t, [][3]float64{{0, 0, 2}, {0, 0, 0}}, s.Coords)
	assert.Same(t, &d.X[2][0], &s.X[0][0])
}

func TestValidate_CoordinateCount(t *testing.T) {
	t.Parallel()

	d := &Dataset{X: [][]float64{{1}, {2}}, Y: []int{1, 2}, Coords: [][3]float64{{0, 0, 0}}}
	require.ErrorIs(t, d.Validate(), ErrInvalidDataset)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "features.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,LABEL\n1,1\n2,2\n"), 0o644))

	d, err := LoadFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	require.ErrorIs(t, err, os.ErrNotExist)
}
