// Package watch implements spec.md section 4.E, the Watch Registry:
// long-poll "revision > lastKnown" waiters filtered by path pattern,
// with cancellation, coalescing, and FIFO delivery per watcher. Nothing
// in the teacher models this shape of cancellable, pattern-filtered
// suspension directly (its controllers suspend on controller-runtime's
// work queue against a live apiserver), so this is built from the
// idiomatic Go primitives the rest of the corpus reaches for when it
// needs cancellable long-lived waits: context.Context, buffered
// channels, and a container/heap timer wheel shared across waiters
// rather than one time.Timer per call.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/pathspec"
)

// HistoryChecker answers "is there already a commit strictly after
// lastKnown whose touched-path set matches pattern", letting Watch
// return immediately instead of registering a waiter that would fire on
// the very next Notify. The Query Engine (internal/query) supplies this
// via GetHistory.
type HistoryChecker func(repo string, lastKnown int64, pattern *pathspec.Pattern) (revision int64, found bool)

type waiter struct {
	repo    string
	pattern *pathspec.Pattern
	result  chan int64 // buffered 1; closed by Registry.Shutdown
}

// Registry holds every repository's pending watchers and dispatches
// Notify callbacks from the Commit Engine to the ones whose pattern
// matches the touched-path set.
type Registry struct {
	mu       sync.Mutex
	waiters  map[string][]*waiter // keyed by repo
	checker  HistoryChecker
	shutdown bool
	wheel    *timerWheel
}

// NewRegistry returns a Registry. checker may be nil, in which case
// Watch always suspends (no "already matches" fast path).
func NewRegistry(checker HistoryChecker) *Registry {
	r := &Registry{
		waiters: map[string][]*waiter{},
		checker: checker,
		wheel:   newTimerWheel(),
	}
	go r.wheel.run()
	return r
}

// Notify is the Commit Engine's post-push hook (spec.md §4.B step 6):
// wake every waiter on repo whose pattern intersects touched.
func (r *Registry) Notify(repo string, revision int64, touched []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := r.waiters[repo][:0]
	for _, w := range r.waiters[repo] {
		if revision > 0 && intersects(w.pattern, touched) {
			select {
			case w.result <- revision:
			default:
				// already has a pending value; coalesce by keeping the
				// newest (drain then resend).
				select {
				case <-w.result:
				default:
				}
				w.result <- revision
			}
			continue
		}
		remaining = append(remaining, w)
	}
	r.waiters[repo] = remaining
}

func intersects(pattern *pathspec.Pattern, touched []string) bool {
	for _, p := range touched {
		if pattern.Match(p) {
			return true
		}
	}
	return false
}

// WatchRepository implements spec.md's watchRepository primitive.
func (r *Registry) WatchRepository(ctx context.Context, repo string, lastKnown int64, pattern *pathspec.Pattern, timeout time.Duration) (int64, error) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return 0, dogmaerrors.New(dogmaerrors.Shutdown, "watch registry is shutting down")
	}
	if r.checker != nil {
		if rev, ok := r.checker(repo, lastKnown, pattern); ok {
			r.mu.Unlock()
			return rev, nil
		}
	}

	w := &waiter{repo: repo, pattern: pattern, result: make(chan int64, 1)}
	r.waiters[repo] = append(r.waiters[repo], w)
	r.mu.Unlock()

	dl := r.wheel.after(timeout)
	defer r.wheel.stop(dl)

	select {
	case rev, ok := <-w.result:
		if !ok {
			return 0, dogmaerrors.New(dogmaerrors.Shutdown, "watch registry is shutting down")
		}
		return rev, nil
	case <-dl.C:
		r.remove(repo, w)
		return 0, dogmaerrors.New(dogmaerrors.Timeout, "no matching change within %s", timeout)
	case <-ctx.Done():
		r.remove(repo, w)
		return 0, dogmaerrors.Wrap(dogmaerrors.Cancelled, ctx.Err(), "watch cancelled")
	}
}

func (r *Registry) remove(repo string, target *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws := r.waiters[repo]
	for i, w := range ws {
		if w == target {
			r.waiters[repo] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
}

// Shutdown marks the registry as terminated: any Watch calls made after
// this return a fatal Shutdown error instead of suspending, and every
// already-suspended WatchRepository call is woken immediately with the
// same error (spec.md §4.E's termination contract) rather than left
// blocked until its timeout or ctx fires.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return
	}
	r.shutdown = true
	for repo, ws := range r.waiters {
		for _, w := range ws {
			close(w.result)
		}
		delete(r.waiters, repo)
	}
	r.wheel.close()
}
