package config

import (
	"encoding/json"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/replication"
)

type updatePayload struct {
	ReadOnly bool `json:"readOnly"`
}

// Applier adapts the process-wide Config singleton to replication.Applier
// for UPDATE_SERVER_STATUS, so a replicated read-only toggle reaches
// every replica's Get() and its OnChange observers identically.
func Applier() replication.Applier {
	return replication.ApplierFunc(func(cmd replication.Command) (json.RawMessage, error) {
		if cmd.Kind != replication.KindUpdateServerState {
			return nil, nil
		}
		var p updatePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding UPDATE_SERVER_STATUS payload")
		}
		next := *Get()
		next.ReadOnly = p.ReadOnly
		return nil, SetAndTrigger(&next)
	})
}
