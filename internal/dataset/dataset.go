// Package dataset assembles the feature matrix and label vector consumed by
// the search from a feature table written by the data-preparation pipeline.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidDataset is wrapped by every structural violation.
var ErrInvalidDataset = errors.New("invalid dataset")

// Default column names of the feature table.
const (
	DefaultLabelColumn = "LABEL"
	DefaultDelimiter   = ','
)

// DefaultCoordColumns names the voxel coordinate columns.
var DefaultCoordColumns = []string{"X", "Y", "Z"}

// Dataset is a feature matrix with one label, and optionally one voxel
// coordinate, per row. Rows are shared, never copied, between a Dataset and
// the subsets taken from it.
type Dataset struct {
	Features []string
	X        [][]float64
	Y        []int
	Coords   [][3]float64
}

// Validate checks that every row has a label, rows have equal width and
// coordinates, when present, cover every row.
func (d *Dataset) Validate() error {
	if len(d.X) == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidDataset)
	}
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("%w: %d feature rows but %d labels", ErrInvalidDataset, len(d.X), len(d.Y))
	}
	if len(d.Coords) != 0 && len(d.Coords) != len(d.Y) {
		return fmt.Errorf("%w: %d coordinates for %d samples", ErrInvalidDataset, len(d.Coords), len(d.Y))
	}
	width := len(d.X[0])
	if width == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidDataset)
	}
	for i, row := range d.X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidDataset, i, len(row), width)
		}
	}
	return nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Y) }

// Width returns the number of features.
func (d *Dataset) Width() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

// Classes returns the sorted distinct labels.
func (d *Dataset) Classes() []int {
	c := slices.Clone(d.Y)
	slices.Sort(c)
	return slices.Compact(c)
}

// Subset returns the samples at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	s := &Dataset{
		Features: d.Features,
		X:        make([][]float64, len(idx)),
		Y:        make([]int, len(idx)),
	}
	if len(d.Coords) > 0 {
		s.Coords = make([][3]float64, len(idx))
	}
	for k, i := range idx {
		s.X[k] = d.X[i]
		s.Y[k] = d.Y[i]
		if s.Coords != nil {
			s.Coords[k] = d.Coords[i]
		}
	}
	return s
}

// Options controls how a feature table is read.
type Options struct {
	LabelColumn  string
	CoordColumns []string // all present or all absent
	Delimiter    rune
}

func (o Options) withDefaults() Options {
	if o.LabelColumn == "" {
		o.LabelColumn = DefaultLabelColumn
	}
	if o.CoordColumns == nil {
		o.CoordColumns = DefaultCoordColumns
	}
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	return o
}

// LoadFile reads a feature table from disk.
func LoadFile(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature table: %w", err)
	}
	defer f.Close()
	d, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load reads a feature table. The label column holds integer tissue labels;
// the coordinate columns, when all present, become Coords; every other
// column is a feature.
func Load(r io.Reader, opts Options) (*Dataset, error) {
	opts = opts.withDefaults()
	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty feature table", ErrInvalidDataset)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	labelAt := -1
	coordAt := make([]int, len(opts.CoordColumns))
	for i := range coordAt {
		coordAt[i] = -1
	}
	var featureAt []int
	d := &Dataset{}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == opts.LabelColumn {
			labelAt = i
			continue
		}
		if k := slices.Index(opts.CoordColumns, name); k >= 0 && k < 3 {
			coordAt[k] = i
			continue
		}
		featureAt = append(featureAt, i)
		d.Features = append(d.Features, name)
	}
	if labelAt < 0 {
		return nil, fmt.Errorf("%w: missing label column %q", ErrInvalidDataset, opts.LabelColumn)
	}
	withCoords, err := coordinateMode(coordAt, opts.CoordColumns)
	if err != nil {
		return nil, err
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDataset, line, err)
		}
		label, err := parseLabel(rec[labelAt])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDataset, line, err)
		}
		row := make([]float64, len(featureAt))
		for k, col := range featureAt {
			if row[k], err = parseFloat(rec[col]); err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %v", ErrInvalidDataset, line, d.Features[k], err)
			}
		}
		if withCoords {
			var c [3]float64
			for k, col := range coordAt {
				if c[k], err = parseFloat(rec[col]); err != nil {
					return nil, fmt.Errorf("%w: line %d column %s: %v", ErrInvalidDataset, line, opts.CoordColumns[k], err)
				}
			}
			d.Coords = append(d.Coords, c)
		}
		d.X = append(d.X, row)
		d.Y = append(d.Y, label)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func coordinateMode(at []int, names []string) (bool, error) {
	if len(at) == 0 {
		return false, nil
	}
	found := 0
	for _, i := range at {
		if i >= 0 {
			found++
		}
	}
	switch {
	case found == 0:
		return false, nil
	case found == len(at) && len(at) == 3:
		return true, nil
	}
	return false, fmt.Errorf("%w: coordinate columns %v must be all present or all absent", ErrInvalidDataset, names)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return v, nil
}

func parseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("label %q is not an integer", s)
	}
	return int(f), nil
}
