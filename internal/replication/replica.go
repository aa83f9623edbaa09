package replication

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/dogmahub/dogma/internal/coordination"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// State is one of the replica lifecycle states spec.md §4.F names.
type State string

const (
	StateStarting State = "STARTING"
	StateFollower State = "FOLLOWER"
	StateLeader   State = "LEADER"
	StateStopping State = "STOPPING"
)

const logPrefix = "/log/"
const electionName = "dogma-replica-leader"

// Replica runs one replica's half of the Replication Log: it watches
// the coordination store's log prefix, applies new entries in order via
// Applier, persists its last-applied position to local disk so restart
// resumes instead of replaying from scratch, and contends for
// leadership so exactly one replica may append new commands at a time.
type Replica struct {
	id        string
	store     coordination.Store
	applier   Applier
	statePath string

	mu          sync.Mutex
	state       State
	lastApplied int64
	seenTokens  map[string]bool
	resign      func(context.Context) error
}

// NewReplica returns a Replica in StateStarting. dataDir holds the
// "last applied" position file; applier receives every command in log
// order, including ones this replica itself produced as leader.
func NewReplica(id string, store coordination.Store, applier Applier, dataDir string) (*Replica, error) {
	r := &Replica{
		id:         id,
		store:      store,
		applier:    applier,
		statePath:  filepath.Join(dataDir, "replication_state.json"),
		state:      StateStarting,
		seenTokens: map[string]bool{},
	}
	if err := r.loadState(); err != nil {
		return nil, err
	}
	return r, nil
}

type persistedState struct {
	LastApplied int64 `json:"lastApplied"`
}

func (r *Replica) loadState() error {
	data, err := os.ReadFile(r.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "reading replication state")
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding replication state")
	}
	r.lastApplied = ps.LastApplied
	return nil
}

func (r *Replica) saveState() error {
	data, err := json.Marshal(persistedState{LastApplied: r.lastApplied})
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding replication state")
	}
	tmp := r.statePath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0o755); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "creating replication state directory")
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "writing replication state")
	}
	return os.Rename(tmp, r.statePath)
}

// State reports the replica's current lifecycle state.
func (r *Replica) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Replica) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run drives the replica until ctx is cancelled: it lists and applies
// every log entry already present (the backlog a restarting or
// newly-joining replica must recover per spec.md's replay contract),
// then contends for leadership in the background while continuing to
// apply every entry (including its own, once it becomes leader) as
// they're watched in. The backlog and the watch come from one
// ListAndWatch call so no entry between them is skipped or reapplied
// from the wrong point.
func (r *Replica) Run(ctx context.Context) error {
	backlog, events, err := r.store.ListAndWatch(ctx, logPrefix)
	if err != nil {
		return err
	}
	for _, ev := range backlog {
		if ev.Deleted {
			continue
		}
		if err := r.applyRaw(ev.Value); err != nil {
			return err
		}
	}

	r.setState(StateFollower)
	go r.campaignLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			r.setState(StateStopping)
			if r.resign != nil {
				_ = r.resign(context.Background())
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Deleted {
				continue
			}
			if err := r.applyRaw(ev.Value); err != nil {
				return err
			}
		}
	}
}

func (r *Replica) applyRaw(data []byte) error {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding log entry")
	}

	r.mu.Lock()
	if !entry.Command.Kind.idempotent() && entry.Command.IdempotencyToken != "" {
		if r.seenTokens[entry.Command.IdempotencyToken] {
			r.mu.Unlock()
			return nil
		}
		r.seenTokens[entry.Command.IdempotencyToken] = true
	}
	r.mu.Unlock()

	if _, err := r.applier.Apply(entry.Command); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastApplied++
	err := r.saveState()
	r.mu.Unlock()
	return err
}

// campaignLoop contends for leadership and flips state between Follower
// and Leader as it's won and lost; it retries with backoff on failure
// rather than giving up, since a transient coordination-store outage
// should degrade to "stay Follower", not terminate the replica.
func (r *Replica) campaignLoop(ctx context.Context) {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: true}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resign, err := r.store.Campaign(ctx, electionName, []byte(r.id))
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.Duration()):
			}
			continue
		}

		r.mu.Lock()
		r.resign = resign
		r.mu.Unlock()
		r.setState(StateLeader)
		b.Reset()

		<-ctx.Done()
		return
	}
}

// Submit appends cmd to the log; only meaningful when this replica is
// leader, but any replica may call it — a follower forwards to the
// leader in a full deployment, which this single-process implementation
// doesn't model, so Submit here always appends locally through the
// shared coordination store and relies on the store's total order.
func (r *Replica) Submit(ctx context.Context, cmd Command) error {
	entry := Entry{ReplicaID: r.id, Command: cmd}
	data, err := json.Marshal(entry)
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding log entry")
	}
	_, err = r.store.CreateSequential(ctx, logPrefix, data)
	return err
}
