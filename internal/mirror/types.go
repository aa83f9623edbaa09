// Package mirror implements spec.md section 4.H, the Mirror Scheduler: a
// 1-second tick loop that enqueues due mirror tasks onto a bounded
// worker pool backed by an unbounded queue, serializes execution per
// mirror id, enforces per-task file/byte caps, and syncs a local tree
// against a remote git branch in either direction via the Commit
// Engine. Grounded directly on internal/_teacherref/gitcloner/cloner.go
// for the clone/auth idiom; the k8s-coupled known-hosts lookup in
// internal/_teacherref/ssh is not reusable as-is (it resolves
// known_hosts from a Kubernetes Secret/ConfigMap), so git.go here keeps
// only its host-key-callback construction (knownHostsCallback), fed from
// the known-hosts data the Syncer is configured with.
package mirror

import "time"

// Direction selects which side of a mirror is authoritative for a sync.
type Direction string

const (
	// DirectionRemoteToLocal clones/fetches the remote branch and pushes
	// the diff against it into the local repository via the Commit Engine.
	DirectionRemoteToLocal Direction = "REMOTE_TO_LOCAL"
	// DirectionLocalToRemote computes the diff between the local tree and
	// the remote head, then commits and pushes it to the remote branch.
	DirectionLocalToRemote Direction = "LOCAL_TO_REMOTE"
)

// Mirror is one configured mirror relationship, persisted by the
// Meta-Repo Indexer under /mirrors/<id>.json (spec.md section 9) and
// read here through the MirrorLister seam.
type Mirror struct {
	ID           string    `json:"id"`
	RepoID       string    `json:"repoId"`
	LocalPath    string    `json:"localPath"`
	RemoteURL    string    `json:"remoteUrl"`
	RemoteBranch string    `json:"remoteBranch"`
	CredentialID string    `json:"credentialId,omitempty"`
	Direction    Direction `json:"direction"`
	Schedule     string    `json:"schedule"` // cron.ParseStandard syntax: 5 fields, or a descriptor such as "@every 1m"
	MaxNumFiles  int       `json:"maxNumFiles"`
	MaxNumBytes  int64     `json:"maxNumBytes"`
	Zone         string    `json:"zone,omitempty"` // pins execution to replicas tagged with this zone
	Enabled      bool      `json:"enabled"`
}

// Task is one scheduled execution of a Mirror.
type Task struct {
	Mirror    Mirror
	Scheduled time.Time
}

// Result reports what a completed Task did.
type Result struct {
	FilesChanged int
	BytesMoved   int64
	RemoteCommit string // the resolved remote commit id, recorded into mirror_state.json
	Revision     int64  // the Commit Engine revision a REMOTE_TO_LOCAL sync pushed; zero if it pushed nothing, and always zero for LOCAL_TO_REMOTE
}

// MirrorLister provides the current set of configured mirrors; the
// Meta-Repo Indexer (internal/metarepo) is the production implementation.
type MirrorLister interface {
	ListMirrors() ([]Mirror, error)
}

// ListerFunc adapts a plain function to MirrorLister, for callers (e.g.
// a deployment with more than one Meta-Repo Indexer) composing several
// listers into one without a dedicated type.
type ListerFunc func() ([]Mirror, error)

func (f ListerFunc) ListMirrors() ([]Mirror, error) { return f() }

// Listener receives lifecycle events for observability collaborators
// (metrics, alerting) that live outside this module (spec.md Non-goals).
type Listener interface {
	OnStart(task Task)
	OnComplete(task Task, result Result)
	OnError(task Task, cause error)
}

// NopListener implements Listener with no-ops, the default when the
// caller doesn't need to observe scheduler activity.
type NopListener struct{}

func (NopListener) OnStart(Task)           {}
func (NopListener) OnComplete(Task, Result) {}
func (NopListener) OnError(Task, error)     {}
