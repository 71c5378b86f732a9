package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
)

// ErrMalformedTable is wrapped by ReadTable failures.
var ErrMalformedTable = errors.New("malformed grid search table")

// TableRow is one configuration read back from a results table.
type TableRow struct {
	Rank   int
	Params forest.Params
	Means  map[objective.Name]float64 // NaN when no fold was valid
}

// Table is a results table read back from disk.
type Table struct {
	Refit      objective.Name
	Objectives []objective.Name
	Rows       []TableRow
}

// ReadTableFile reads the results table of a run directory.
func ReadTableFile(dir string) (*Table, error) {
	f, err := os.Open(filepath.Join(dir, TableFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}

// ReadTable parses a table written by WriteTable.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}

	t := &Table{}
	rankAt := -1
	params := map[string]int{}
	means := map[objective.Name]int{}
	for i, col := range header {
		switch {
		case strings.HasPrefix(col, "rank_test_"):
			t.Refit = objective.Name(strings.TrimPrefix(col, "rank_test_"))
			rankAt = i
		case strings.HasPrefix(col, "param_"):
			params[strings.TrimPrefix(col, "param_")] = i
		case strings.HasPrefix(col, "mean_test_"):
			obj := objective.Name(strings.TrimPrefix(col, "mean_test_"))
			means[obj] = i
			t.Objectives = append(t.Objectives, obj)
		}
	}
	if rankAt < 0 {
		return nil, fmt.Errorf("%w: no rank column", ErrMalformedTable)
	}
	if _, ok := means[t.Refit]; !ok {
		return nil, fmt.Errorf("%w: no mean column for refit objective %s", ErrMalformedTable, t.Refit)
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}
		row := TableRow{Means: map[objective.Name]float64{}}
		if row.Rank, err = strconv.Atoi(rec[rankAt]); err != nil {
			return nil, fmt.Errorf("%w: line %d: rank %q", ErrMalformedTable, line, rec[rankAt])
		}
		values := make(map[string]string, len(params))
		for name, i := range params {
			values[name] = rec[i]
		}
		if row.Params, err = forest.ParseValues(values); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}
		for obj, i := range means {
			row.Means[obj] = math.NaN()
			if rec[i] == "" {
				continue
			}
			if row.Means[obj], err = strconv.ParseFloat(rec[i], 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s %q", ErrMalformedTable, line, obj, rec[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Best re-selects the best configuration from the refit means, ignoring the
// stored ranks. Equal scores keep file order.
func (t *Table) Best(scorer objective.Scorer) (TableRow, error) {
	greaterIsBetter, err := scorer.GreaterIsBetter(t.Refit)
	if err != nil {
		return TableRow{}, err
	}
	var candidates []TableRow
	for _, row := range t.Rows {
		if !math.IsNaN(row.Means[t.Refit]) {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return TableRow{}, fmt.Errorf("%w: no configuration with a %s score", ErrMalformedTable, t.Refit)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Means[t.Refit], candidates[j].Means[t.Refit]
		if greaterIsBetter {
			return a > b
		}
		return a < b
	})
	return candidates[0], nil
}
