package report

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/fsutil"
)

// Store loads reports through an Enumerator so that the same code reads the
// real result tree and in-memory fixtures.
type Store struct {
	enum      fsutil.Enumerator
	delimiter rune
}

// Option configures a Store.
type Option func(*Store)

// WithDelimiter overrides the column separator.
func WithDelimiter(d rune) Option {
	return func(s *Store) { s.delimiter = d }
}

// NewStore creates a store reading through enum.
func NewStore(enum fsutil.Enumerator, opts ...Option) *Store {
	s := &Store{enum: enum, delimiter: DefaultDelimiter}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enumerator exposes the underlying enumerator for discovery.
func (s *Store) Enumerator() fsutil.Enumerator {
	return s.enum
}

// Load reads and parses the report at location.
func (s *Store) Load(ctx context.Context, location string) (*Report, error) {
	rc, err := s.enum.Open(location)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer rc.Close()

	rep, err := LoadDelimited(rc, location, s.delimiter)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Report loaded.", "path", location, "rows", rep.Len())
	return rep, nil
}

// LoadFile is a convenience for reading a report straight from disk.
func LoadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	return Load(f, path)
}
