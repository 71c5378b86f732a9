// Package report materializes per-run metric summaries (the
// results_summary.csv files written by the evaluation step of a pipeline
// run) and exposes a typed lookup over them.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Required column names of a report file.
const (
	ColumnLabel     = "LABEL"
	ColumnMetric    = "METRIC"
	ColumnStatistic = "STATISTIC"
	ColumnValue     = "VALUE"
)

// DefaultFileName is the name the evaluation step gives its summary.
const DefaultFileName = "results_summary.csv"

// DefaultDelimiter separates report columns.
const DefaultDelimiter = ';'

// Common statistic kinds.
const (
	StatMean   = "MEAN"
	StatStd    = "STD"
	StatMedian = "MEDIAN"
	StatMin    = "MIN"
	StatMax    = "MAX"
)

// ErrMalformedReport is matched by every *MalformedError.
var ErrMalformedReport = errors.New("malformed report")

// MalformedError describes why a report could not be materialized.
type MalformedError struct {
	Source string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed report %s: %s", e.Source, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedReport) hold.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedReport
}

// Key identifies one row of a report.
type Key struct {
	Label     string
	Metric    string
	Statistic string
}

// Row is a single (label, metric, statistic) value.
type Row struct {
	Key
	Value float64
}

// Report is the in-memory form of one run's metric summary.
type Report struct {
	Source string
	rows   []Row
	index  map[Key]int
}

// Load parses a report using the default ';' delimiter.
func Load(r io.Reader, source string) (*Report, error) {
	return LoadDelimited(r, source, DefaultDelimiter)
}

// LoadDelimited parses a report whose columns are separated by delim. Column
// order is free; extra columns are ignored.
func LoadDelimited(r io.Reader, source string, delim rune) (*Report, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MalformedError{Source: source, Reason: "empty file"}
	}
	if err != nil {
		return nil, &MalformedError{Source: source, Reason: err.Error()}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, name := range []string{ColumnLabel, ColumnMetric, ColumnStatistic, ColumnValue} {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MalformedError{Source: source, Reason: "missing columns " + strings.Join(missing, ", ")}
	}

	rep := &Report{Source: source, index: make(map[Key]int)}
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &MalformedError{Source: source, Reason: err.Error()}
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		field := func(name string) (string, error) {
			i := cols[name]
			if i >= len(record) {
				return "", &MalformedError{Source: source, Reason: fmt.Sprintf("line %d: missing %s", line, name)}
			}
			return strings.TrimSpace(record[i]), nil
		}

		var key Key
		var raw string
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{ColumnLabel, &key.Label},
			{ColumnMetric, &key.Metric},
			{ColumnStatistic, &key.Statistic},
			{ColumnValue, &raw},
		} {
			v, err := field(f.name)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}

		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &MalformedError{Source: source, Reason: fmt.Sprintf("line %d: value %q is not a number", line, raw)}
		}
		if _, dup := rep.index[key]; dup {
			return nil, &MalformedError{Source: source, Reason: fmt.Sprintf("line %d: duplicate %s/%s/%s", line, key.Label, key.Metric, key.Statistic)}
		}
		rep.index[key] = len(rep.rows)
		rep.rows = append(rep.rows, Row{Key: key, Value: value})
	}

	return rep, nil
}

// Filter returns the value for the triple. The boolean is false when the
// report has no such row, which callers must not treat as a zero score.
func (r *Report) Filter(label, metric, statistic string) (float64, bool) {
	i, ok := r.index[Key{Label: label, Metric: metric, Statistic: statistic}]
	if !ok {
		return 0, false
	}
	return r.rows[i].Value, true
}

// Rows returns the rows of one statistic in file order. An empty statistic
// returns every row.
func (r *Report) Rows(statistic string) []Row {
	out := make([]Row, 0, len(r.rows))
	for _, row := range r.rows {
		if statistic == "" || row.Statistic == statistic {
			out = append(out, row)
		}
	}
	return out
}

// Len reports the number of rows.
func (r *Report) Len() int { return len(r.rows) }

// Labels returns the distinct labels in first-seen order.
func (r *Report) Labels() []string {
	return r.distinct(func(k Key) string { return k.Label })
}

// Metrics returns the distinct metric names in first-seen order.
func (r *Report) Metrics() []string {
	return r.distinct(func(k Key) string { return k.Metric })
}

func (r *Report) distinct(pick func(Key) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range r.rows {
		v := pick(row.Key)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
