package session

import (
	"context"
	"encoding/json"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/replication"
)

// createPayload/removePayload are the Command.Payload shapes for
// KindCreateSession/KindRemoveSession (spec.md section 6's wire format).
type createPayload struct {
	Session Session `json:"session"`
}

type removePayload struct {
	ID string `json:"id"`
}

// Applier adapts Store to replication.Applier so CREATE_SESSION and
// REMOVE_SESSION log entries mutate every replica's local file tree
// identically as they're replayed in order.
func Applier(store *Store) replication.Applier {
	return replication.ApplierFunc(func(cmd replication.Command) (json.RawMessage, error) {
		switch cmd.Kind {
		case replication.KindCreateSession:
			var p createPayload
			if err := json.Unmarshal(cmd.Payload, &p); err != nil {
				return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding CREATE_SESSION payload")
			}
			if err := store.Create(p.Session); err != nil && !dogmaerrors.Is(err, dogmaerrors.AlreadyExists) {
				return nil, err
			}
			return nil, nil
		case replication.KindRemoveSession:
			var p removePayload
			if err := json.Unmarshal(cmd.Payload, &p); err != nil {
				return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding REMOVE_SESSION payload")
			}
			return nil, store.Delete(p.ID)
		default:
			return nil, nil
		}
	})
}

// SubmitCreate marshals sess into a CREATE_SESSION command and submits
// it to the replica; idempotent per command.Kind.idempotent(), so a
// retried submission after a lost ack is safe to resend.
func SubmitCreate(ctx context.Context, replica *replication.Replica, sess Session) error {
	payload, err := json.Marshal(createPayload{Session: sess})
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding CREATE_SESSION payload")
	}
	return replica.Submit(ctx, replication.Command{
		Kind:    replication.KindCreateSession,
		Payload: payload,
	})
}

// SubmitRemove marshals id into a REMOVE_SESSION command and submits it.
func SubmitRemove(ctx context.Context, replica *replication.Replica, id string) error {
	payload, err := json.Marshal(removePayload{ID: id})
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding REMOVE_SESSION payload")
	}
	return replica.Submit(ctx, replication.Command{
		Kind:    replication.KindRemoveSession,
		Payload: payload,
	})
}
