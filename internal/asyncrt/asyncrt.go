// Package asyncrt abstracts task spawning behind a small interface so the
// orchestrator's correctness never depends on which concurrency adapter
// is active — a bare-goroutine adapter for the common case, and an
// errgroup-backed adapter for callers that want structured shutdown of
// every in-flight decoder task at once.
package asyncrt

import (
	"time"

	"golang.org/x/sync/errgroup"
)

// Runtime spawns background work and provides a cancellable timer.
type Runtime interface {
	Go(func())
	After(d time.Duration) <-chan time.Time
}

// Native is the default adapter: bare `go` statements and time.After.
type Native struct{}

func (Native) Go(f func())                          { go f() }
func (Native) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Grouped wraps golang.org/x/sync/errgroup so a caller can Wait() for
// every spawned task and collect the first error.
type Grouped struct {
	g *errgroup.Group
}

// NewGrouped returns a Grouped runtime backed by a fresh errgroup.
func NewGrouped() *Grouped {
	return &Grouped{g: &errgroup.Group{}}
}

func (r *Grouped) Go(f func()) {
	r.g.Go(func() error {
		f()
		return nil
	})
}

func (r *Grouped) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Wait blocks until every spawned task has returned.
func (r *Grouped) Wait() error {
	return r.g.Wait()
}
