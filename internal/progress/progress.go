// Package progress publishes search progress to observers outside the
// process.
package progress

import (
	"context"
	"sync"
	"time"
)

// Event kinds.
const (
	KindStarted  = "search.started"
	KindUnit     = "search.unit"
	KindFinished = "search.finished"
)

// Event describes one step of a search run.
type Event struct {
	Kind      string
	RunID     string
	Config    int
	Fold      int
	Completed int
	Total     int
	Valid     bool
	Error     string
	Elapsed   time.Duration
	Best      string
	BestScore float64
}

// Publisher receives events. Implementations must be safe for concurrent use;
// a failing publisher never fails the search.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
