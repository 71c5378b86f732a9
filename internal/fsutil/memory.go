package fsutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Enumerator. Paths are slash separated.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory creates an empty in-memory tree.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Add stores content at p, replacing any previous file.
func (m *Memory) Add(p string, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(p)] = []byte(content)
}

// Find returns every file named name below root, in lexical path order.
func (m *Memory) Find(ctx context.Context, root, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root = path.Clean(root)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []string
	for p := range m.files {
		if path.Base(p) != name || !under(root, p) {
			continue
		}
		found = append(found, p)
	}
	sort.Slice(found, func(i, j int) bool { return walkLess(found[i], found[j]) })
	return found, nil
}

// Open returns a reader over the stored content.
func (m *Memory) Open(p string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func under(root, p string) bool {
	if root == "." || root == "/" {
		return true
	}
	return p == root || strings.HasPrefix(p, root+"/")
}

// walkLess orders paths the way a lexical directory walk visits them: segment
// by segment, so "run/b" precedes "run-2" even though '-' sorts before '/'.
func walkLess(a, b string) bool {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}
