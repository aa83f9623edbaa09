package watch

import (
	"context"
	"sync"
	"time"
)

// Mapper transforms a raw watched (revision, content) pair into the
// value observers actually want.
type Mapper func(revision int64, content []byte) (any, error)

// Watcher is the higher-level, client-facing construct spec.md's
// GLOSSARY describes: a registered interest in "any revision > lastKnown
// matching pattern", with a pure mapping function applied to the
// observed raw value. The mapper runs at most once per new revision
// even with many concurrent observers, and a mapping error on the first
// observation surfaces to every observer of that first value.
type Watcher struct {
	registry *Registry
	repo     string
	path     string
	fetch    ContentFetcher
	mapper   Mapper
	timeout  time.Duration

	mu       sync.Mutex
	revision int64
	value    any
	err      error
	ready    bool
}

// NewWatcher returns a Watcher starting from revision 0 (no prior
// observation); the first call to Next triggers the initial fetch.
func NewWatcher(registry *Registry, repo, path string, fetch ContentFetcher, mapper Mapper, timeout time.Duration) *Watcher {
	return &Watcher{registry: registry, repo: repo, path: path, fetch: fetch, mapper: mapper, timeout: timeout}
}

// Next blocks until a revision newer than the last observed one is
// available (or ctx is done), applies the mapper exactly once for that
// revision, and returns the mapped value. Concurrent callers observing
// the same new revision all receive the same mapped value and error
// without the mapper running twice.
func (w *Watcher) Next(ctx context.Context) (any, error) {
	w.mu.Lock()
	last := w.revision
	w.mu.Unlock()

	rev, content, err := w.registry.WatchFile(ctx, w.repo, last, w.path, w.timeout, w.fetch)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if rev == w.revision && w.ready {
		// another goroutine already mapped this exact revision
		return w.value, w.err
	}
	value, mapErr := w.mapper(rev, content)
	w.revision = rev
	w.value = value
	w.err = mapErr
	w.ready = true
	return value, mapErr
}
