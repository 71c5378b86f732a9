// Package fsutil provides file system utility functions and the pluggable
// enumerators used to discover run reports.
package fsutil

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Enumerator discovers files below a root and opens them. Implementations must
// return paths in a deterministic, lexical order so that anything ranked on top
// of the traversal is reproducible across runs and machines.
type Enumerator interface {
	Find(ctx context.Context, root, name string) ([]string, error)
	Open(path string) (io.ReadCloser, error)
}

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}
	return findFiles(context.Background(), rootPath, func(name string) bool {
		return strings.HasSuffix(name, extension)
	})
}

// Skip is an entry below the walked root that could not be read.
type Skip struct {
	Path string
	Err  error
}

// PartialError is returned together with the files that were found when some
// entries below the root could not be read. A failure on the root itself is
// returned as is.
type PartialError struct {
	Skipped []Skip
}

func (e *PartialError) Error() string {
	if len(e.Skipped) == 1 {
		return fmt.Sprintf("skipped %s: %v", e.Skipped[0].Path, e.Skipped[0].Err)
	}
	return fmt.Sprintf("skipped %d unreadable entries, first %s: %v", len(e.Skipped), e.Skipped[0].Path, e.Skipped[0].Err)
}

// findFiles walks rootPath and collects regular files accepted by match.
// filepath.WalkDir visits entries in lexical order, which the enumerator relies on.
func findFiles(ctx context.Context, rootPath string, match func(name string) bool) ([]string, error) {
	w := &walker{ctx: ctx, root: rootPath, match: match}
	if err := filepath.WalkDir(rootPath, w.visit); err != nil {
		return nil, err
	}
	if len(w.skipped) > 0 {
		return w.files, &PartialError{Skipped: w.skipped}
	}
	return w.files, nil
}

type walker struct {
	ctx     context.Context
	root    string
	match   func(name string) bool
	files   []string
	skipped []Skip
}

func (w *walker) visit(path string, d fs.DirEntry, err error) error {
	if ctxErr := w.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		if path == w.root {
			return err
		}
		w.skipped = append(w.skipped, Skip{Path: path, Err: err})
		if d != nil && d.IsDir() {
			return fs.SkipDir
		}
		return nil
	}
	if !d.IsDir() && w.match(d.Name()) {
		w.files = append(w.files, path)
	}
	return nil
}

// Dir enumerates the real filesystem.
type Dir struct{}

// NewDir returns an Enumerator backed by the operating system's filesystem.
func NewDir() *Dir {
	return &Dir{}
}

// Find returns every file named name below root, in lexical path order.
// Unreadable entries below root are skipped and reported in a *PartialError.
func (Dir) Find(ctx context.Context, root, name string) ([]string, error) {
	return findFiles(ctx, root, func(n string) bool { return n == name })
}

// Open opens path for reading.
func (Dir) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
