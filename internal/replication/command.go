// Package replication implements spec.md section 4.F's Replication Log:
// a leader-elected, totally-ordered log of tagged-union Commands that
// every replica applies in order to reach the same local state. Command
// shapes are grounded directly in spec.md §6's wire-format description
// (the teacher has no equivalent — its state lives in the Kubernetes
// apiserver, which is its own replicated log).
package replication

import "encoding/json"

// Kind enumerates the command types spec.md names across the Repository
// Manager, Commit Engine, Session Store, and administrative surface.
type Kind string

const (
	KindCreateProject     Kind = "CREATE_PROJECT"
	KindRemoveProject     Kind = "REMOVE_PROJECT"
	KindUnremoveProject   Kind = "UNREMOVE_PROJECT"
	KindPurgeProject      Kind = "PURGE_PROJECT"
	KindCreateRepo        Kind = "CREATE_REPO"
	KindRemoveRepo        Kind = "REMOVE_REPO"
	KindUnremoveRepo      Kind = "UNREMOVE_REPO"
	KindPurgeRepo         Kind = "PURGE_REPO"
	KindPush              Kind = "PUSH"
	KindForcePush         Kind = "FORCE_PUSH"
	KindUpdateServerState Kind = "UPDATE_SERVER_STATUS"
	KindCreateSession     Kind = "CREATE_SESSION"
	KindRemoveSession     Kind = "REMOVE_SESSION"
)

// idempotent reports whether duplicate submissions of this kind are
// naturally safe to apply twice (invariant R1): session upsert and the
// soft-delete/unremove toggles are idempotent, a push is not (applying
// the same push twice would double-advance the revision).
func (k Kind) idempotent() bool {
	switch k {
	case KindCreateSession, KindRemoveSession, KindUnremoveProject, KindUnremoveRepo,
		KindRemoveProject, KindRemoveRepo, KindUpdateServerState:
		return true
	default:
		return false
	}
}

// Command is the tagged union appended to the log. IdempotencyToken is
// required for non-idempotent kinds (principally PUSH/FORCE_PUSH) so a
// replaying leader or a retried client submission is detected and
// rejected rather than double-applied.
type Command struct {
	Kind             Kind            `json:"kind"`
	IdempotencyToken string          `json:"idempotencyToken,omitempty"`
	Payload          json.RawMessage `json:"payload"`
}

// Entry is one appended log record: {replicaId, command, result?}. The
// result is informational, written only by the producing leader, and is
// not required for replay correctness (spec.md §4.F).
type Entry struct {
	ReplicaID string          `json:"replicaId"`
	Command   Command         `json:"command"`
	Result    json.RawMessage `json:"result,omitempty"`
}
