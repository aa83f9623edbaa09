package repomanager

import (
	"encoding/json"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/replication"
)

type projectPayload struct {
	Name string `json:"name"`
}

type repoPayload struct {
	Project string `json:"project"`
	Name    string `json:"name"`
}

// Applier adapts Manager to replication.Applier for the eight
// project/repository lifecycle command kinds spec.md section 4.D names.
// Replay safety for the non-idempotent kinds (create, purge) is the
// Replication Log's concern, via Command.IdempotencyToken.
func Applier(manager *Manager) replication.Applier {
	return replication.ApplierFunc(func(cmd replication.Command) (json.RawMessage, error) {
		switch cmd.Kind {
		case replication.KindCreateProject:
			p, err := decodeProject(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.CreateProject(p.Name)
		case replication.KindRemoveProject:
			p, err := decodeProject(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.RemoveProject(p.Name)
		case replication.KindUnremoveProject:
			p, err := decodeProject(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.UnremoveProject(p.Name)
		case replication.KindPurgeProject:
			p, err := decodeProject(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.PurgeProject(p.Name)
		case replication.KindCreateRepo:
			r, err := decodeRepo(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.CreateRepository(r.Project, r.Name)
		case replication.KindRemoveRepo:
			r, err := decodeRepo(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.RemoveRepository(r.Project, r.Name)
		case replication.KindUnremoveRepo:
			r, err := decodeRepo(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.UnremoveRepository(r.Project, r.Name)
		case replication.KindPurgeRepo:
			r, err := decodeRepo(cmd.Payload)
			if err != nil {
				return nil, err
			}
			return nil, manager.PurgeRepository(r.Project, r.Name)
		default:
			return nil, nil
		}
	})
}

func decodeProject(raw json.RawMessage) (projectPayload, error) {
	var p projectPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding project command payload")
	}
	return p, nil
}

func decodeRepo(raw json.RawMessage) (repoPayload, error) {
	var r repoPayload
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding repository command payload")
	}
	return r, nil
}
