package coordination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

type memEntry struct {
	value   []byte
	version int64
}

// MemStore is an in-process Store for single-replica runs and tests. It
// implements every primitive Store names except real session-loss
// semantics: CreateEphemeral entries persist until explicitly deleted or
// the process exits.
type MemStore struct {
	mu       sync.Mutex
	entries  map[string]memEntry
	watchers map[string][]chan Event
	seq      int64
	leaders  map[string]bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		entries:  map[string]memEntry{},
		watchers: map[string][]chan Event{},
		leaders:  map[string]bool{},
	}
}

func (m *MemStore) notify(key string, value []byte, deleted bool) {
	for prefix, chans := range m.watchers {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- Event{Key: key, Value: value, Deleted: deleted}:
			default:
			}
		}
	}
}

func (m *MemStore) CreateEphemeral(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return dogmaerrors.New(dogmaerrors.AlreadyExists, "key %s already exists", key)
	}
	m.entries[key] = memEntry{value: value, version: 1}
	m.notify(key, value, false)
	return nil
}

func (m *MemStore) CreateSequential(ctx context.Context, prefix string, value []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := atomic.AddInt64(&m.seq, 1)
	key := fmt.Sprintf("%s%020d", prefix, n)
	m.entries[key] = memEntry{value: value, version: 1}
	m.notify(key, value, false)
	return key, nil
}

func (m *MemStore) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, 0, false, nil
	}
	return e.value, e.version, true, nil
}

func (m *MemStore) CompareAndSwap(ctx context.Context, key string, expectVersion int64, newValue []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if expectVersion == 0 {
		if ok {
			return dogmaerrors.New(dogmaerrors.ChangeConflict, "key %s already exists", key)
		}
		m.entries[key] = memEntry{value: newValue, version: 1}
		m.notify(key, newValue, false)
		return nil
	}
	if !ok || e.version != expectVersion {
		return dogmaerrors.New(dogmaerrors.ChangeConflict, "key %s version mismatch", key)
	}
	m.entries[key] = memEntry{value: newValue, version: e.version + 1}
	m.notify(key, newValue, false)
	return nil
}

// ListAndWatch snapshots every entry under prefix and registers the
// watch channel in the same critical section, so no entry inserted
// concurrently with the call is missed (already in the snapshot) or
// delivered twice (not yet in the snapshot, so only ever seen on ch).
func (m *MemStore) ListAndWatch(ctx context.Context, prefix string) ([]Event, <-chan Event, error) {
	m.mu.Lock()
	var keys []string
	for k := range m.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	backlog := make([]Event, 0, len(keys))
	for _, k := range keys {
		backlog = append(backlog, Event{Key: k, Value: m.entries[k].value})
	}

	ch := make(chan Event, 64)
	m.watchers[prefix] = append(m.watchers[prefix], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		chans := m.watchers[prefix]
		for i, c := range chans {
			if c == ch {
				m.watchers[prefix] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return backlog, ch, nil
}

// Campaign grants leadership to whichever caller reaches it first for a
// given electionName; later callers block until ctx is cancelled
// without ever becoming leader, since MemStore never loses a session.
func (m *MemStore) Campaign(ctx context.Context, electionName string, value []byte) (func(context.Context) error, error) {
	m.mu.Lock()
	if m.leaders[electionName] {
		m.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.leaders[electionName] = true
	m.mu.Unlock()

	resign := func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.leaders, electionName)
		return nil
	}
	return resign, nil
}

func (m *MemStore) Close() error { return nil }

// Keys returns every stored key under prefix, sorted, for debugging and
// tests.
func (m *MemStore) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
