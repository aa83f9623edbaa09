package commit

import (
	"encoding/json"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/replication"
	"github.com/dogmahub/dogma/internal/types"
)

// pushPayload is the Command.Payload shape for PUSH/FORCE_PUSH (spec.md
// section 6's wire format).
type pushPayload struct {
	Repo         string           `json:"repo"`
	BaseRevision int64            `json:"baseRevision"`
	Author       string           `json:"author"`
	Summary      string           `json:"summary"`
	Detail       string           `json:"detail,omitempty"`
	Markup       types.MarkupKind `json:"markup,omitempty"`
	Changes      []types.Change   `json:"changes"`
}

type pushResult struct {
	Revision int64 `json:"revision"`
}

// Applier adapts Engine to replication.Applier for PUSH/FORCE_PUSH.
// Replay safety is the Replication Log's concern (Command.IdempotencyToken);
// a duplicate submission never reaches Apply twice.
func Applier(engine *Engine) replication.Applier {
	return replication.ApplierFunc(func(cmd replication.Command) (json.RawMessage, error) {
		switch cmd.Kind {
		case replication.KindPush, replication.KindForcePush:
			var p pushPayload
			if err := json.Unmarshal(cmd.Payload, &p); err != nil {
				return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding push command payload")
			}
			rev, _, err := engine.Push(p.Repo, p.BaseRevision, cmd.Kind == replication.KindForcePush,
				p.Author, p.Summary, p.Detail, p.Markup, p.Changes)
			if err != nil {
				return nil, err
			}
			result, err := json.Marshal(pushResult{Revision: rev})
			if err != nil {
				return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding push result")
			}
			return result, nil
		default:
			return nil, nil
		}
	})
}
