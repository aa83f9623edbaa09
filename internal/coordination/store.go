// Package coordination abstracts the ZooKeeper-style primitives spec.md
// section 4.F's Replication Log is built on: ephemeral and sequential
// node creation, compare-and-swap, and watch. The production binding is
// etcd (internal/coordination/etcd.go), grounded on the pack's
// etcd-as-coordination-store pairing (ConfigButler-gitops-reverser,
// cuemby-warren); an in-memory implementation backs single-replica runs
// and tests without a cluster.
package coordination

import "context"

// Event is one change observed on a watched key.
type Event struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Store is the coordination service contract the Replication Log's
// leader election and log append depend on.
type Store interface {
	// CreateEphemeral creates key with value, bound to the caller's
	// session; it disappears if the session is lost (used for replica
	// liveness and leader-election candidacy).
	CreateEphemeral(ctx context.Context, key string, value []byte) error

	// CreateSequential creates a new key under prefix with a
	// monotonically increasing suffix the store assigns, returning the
	// full key (used for log entry append order).
	CreateSequential(ctx context.Context, prefix string, value []byte) (string, error)

	// Get returns the value at key and its version (0, false if absent).
	Get(ctx context.Context, key string) ([]byte, int64, bool, error)

	// CompareAndSwap sets key to newValue only if its current version
	// equals expectVersion (0 means "key must not exist"). Returns
	// dogmaerrors.ChangeConflict on mismatch.
	CompareAndSwap(ctx context.Context, key string, expectVersion int64, newValue []byte) error

	// ListAndWatch returns every key currently stored under prefix, in
	// key order, plus a channel delivering every change from that point
	// forward until ctx is cancelled. The snapshot and the watch are
	// taken atomically so no entry appended concurrently with the call is
	// either missed or delivered twice — the Replication Log's replay
	// depends on this to recover its full backlog after a restart rather
	// than only the entries appended from "now" on.
	ListAndWatch(ctx context.Context, prefix string) (backlog []Event, changes <-chan Event, err error)

	// Campaign blocks until the caller becomes leader for electionName
	// or ctx is cancelled; the returned resign function releases
	// leadership. Callers should select on ctx.Done() and treat it as a
	// leadership loss signal.
	Campaign(ctx context.Context, electionName string, value []byte) (resign func(context.Context) error, err error)

	Close() error
}
