package commit

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v2"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/types"
)

// applyResult is the outcome of applying one types.Change against a
// snapshot: the entry the path now holds (nil if it was removed), the
// set of paths touched (more than one for rename), and the
// representation the change should be recorded as once normalized
// (invariant I4: an UPSERT_JSON against an existing JSON value at the
// same path is always recorded as an APPLY_JSON_PATCH).
type applyResult struct {
	touched    map[string]*types.Entry // nil value means removed
	normalized types.Change
	noop       bool
}

// applyChange computes the effect of a single change against snap
// without mutating it, returning the normalized form to persist.
func applyChange(snap *snapshot, ch types.Change) (applyResult, error) {
	if err := types.ValidatePath(ch.Path); err != nil {
		return applyResult{}, err
	}

	switch ch.Kind {
	case types.ChangeUpsertText:
		return applyUpsert(snap, ch, types.EntryTypeText)
	case types.ChangeUpsertJSON:
		return applyUpsertJSON(snap, ch)
	case types.ChangeUpsertYAML:
		return applyUpsertYAML(snap, ch)
	case types.ChangeApplyPatch:
		return applyPatchChange(snap, ch)
	case types.ChangeApplyTxtPch:
		return applyTextPatchChange(snap, ch)
	case types.ChangeRemove:
		return applyRemove(snap, ch)
	case types.ChangeRename:
		return applyRename(snap, ch)
	default:
		return applyResult{}, dogmaerrors.New(dogmaerrors.InvalidPush, "unknown change kind %q", ch.Kind)
	}
}

func applyUpsert(snap *snapshot, ch types.Change, typ types.EntryType) (applyResult, error) {
	existing, ok, err := snap.Get(ch.Path)
	if err != nil {
		return applyResult{}, err
	}
	if ok && existing.Type == typ && bytes.Equal(existing.Content, ch.Content) {
		return applyResult{noop: true}, nil
	}
	e := types.Entry{Path: ch.Path, Type: typ, Content: ch.Content}
	return applyResult{
		touched:    map[string]*types.Entry{ch.Path: &e},
		normalized: ch,
	}, nil
}

// applyUpsertJSON implements invariant I4: when the path already holds
// a JSON value, the upsert is rewritten into an equivalent
// APPLY_JSON_PATCH so history records a diff rather than a full
// replacement; an identical value is dropped entirely as a no-op.
func applyUpsertJSON(snap *snapshot, ch types.Change) (applyResult, error) {
	var newVal any
	if err := json.Unmarshal(ch.Content, &newVal); err != nil {
		return applyResult{}, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "invalid JSON for %s", ch.Path)
	}

	existing, ok, err := snap.Get(ch.Path)
	if err != nil {
		return applyResult{}, err
	}
	if !ok || existing.Type != types.EntryTypeJSON {
		return applyUpsert(snap, ch, types.EntryTypeJSON)
	}

	var oldVal any
	if err := json.Unmarshal(existing.Content, &oldVal); err != nil {
		// prior content isn't valid JSON despite its declared type; treat
		// this as a plain replace rather than failing the push.
		return applyUpsert(snap, ch, types.EntryTypeJSON)
	}

	ops := diffJSONPatch(oldVal, newVal, "")
	if len(ops) == 0 {
		return applyResult{noop: true}, nil
	}
	patchDoc, err := json.Marshal(ops)
	if err != nil {
		return applyResult{}, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "encoding normalized patch")
	}
	canonical, err := json.Marshal(newVal)
	if err != nil {
		return applyResult{}, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "encoding canonical value")
	}

	e := types.Entry{Path: ch.Path, Type: types.EntryTypeJSON, Content: canonical}
	normalized := types.Change{Path: ch.Path, Kind: types.ChangeApplyPatch, Content: patchDoc}
	return applyResult{
		touched:    map[string]*types.Entry{ch.Path: &e},
		normalized: normalized,
	}, nil
}

func applyUpsertYAML(snap *snapshot, ch types.Change) (applyResult, error) {
	var probe any
	if err := yaml.Unmarshal(ch.Content, &probe); err != nil {
		return applyResult{}, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "invalid YAML for %s", ch.Path)
	}
	return applyUpsert(snap, ch, types.EntryTypeYAML)
}

func applyPatchChange(snap *snapshot, ch types.Change) (applyResult, error) {
	existing, ok, err := snap.Get(ch.Path)
	if err != nil {
		return applyResult{}, err
	}
	if !ok {
		return applyResult{}, dogmaerrors.New(dogmaerrors.NotFound, "no entry at %s to patch", ch.Path)
	}
	if existing.Type != types.EntryTypeJSON {
		return applyResult{}, dogmaerrors.New(dogmaerrors.InvalidPush, "%s is not a JSON entry", ch.Path)
	}

	out, err := applyJSONPatch(existing.Content, ch.Content)
	if err != nil {
		return applyResult{}, err
	}
	if jsonEqual(existing.Content, out) {
		return applyResult{noop: true}, nil
	}
	e := types.Entry{Path: ch.Path, Type: types.EntryTypeJSON, Content: out}
	return applyResult{
		touched:    map[string]*types.Entry{ch.Path: &e},
		normalized: ch,
	}, nil
}

func applyTextPatchChange(snap *snapshot, ch types.Change) (applyResult, error) {
	existing, ok, err := snap.Get(ch.Path)
	if err != nil {
		return applyResult{}, err
	}
	if !ok {
		return applyResult{}, dogmaerrors.New(dogmaerrors.NotFound, "no entry at %s to patch", ch.Path)
	}

	out, err := applyTextPatch(string(existing.Content), string(ch.Content))
	if err != nil {
		return applyResult{}, err
	}
	if out == string(existing.Content) {
		return applyResult{noop: true}, nil
	}
	e := types.Entry{Path: ch.Path, Type: existing.Type, Content: []byte(out)}
	return applyResult{
		touched:    map[string]*types.Entry{ch.Path: &e},
		normalized: ch,
	}, nil
}

func applyRemove(snap *snapshot, ch types.Change) (applyResult, error) {
	_, ok, err := snap.Get(ch.Path)
	if err != nil {
		return applyResult{}, err
	}
	if !ok {
		return applyResult{noop: true}, nil
	}
	return applyResult{
		touched:    map[string]*types.Entry{ch.Path: nil},
		normalized: ch,
	}, nil
}

func applyRename(snap *snapshot, ch types.Change) (applyResult, error) {
	if err := types.ValidatePath(ch.RenameTo); err != nil {
		return applyResult{}, err
	}
	src, ok, err := snap.Get(ch.Path)
	if err != nil {
		return applyResult{}, err
	}
	if !ok {
		return applyResult{}, dogmaerrors.New(dogmaerrors.NotFound, "no entry at %s to rename", ch.Path)
	}
	if ch.Path == ch.RenameTo {
		return applyResult{noop: true}, nil
	}
	if _, ok, err := snap.Get(ch.RenameTo); err != nil {
		return applyResult{}, err
	} else if ok {
		return applyResult{}, dogmaerrors.New(dogmaerrors.AlreadyExists, "%s already exists", ch.RenameTo)
	}

	moved := types.Entry{Path: ch.RenameTo, Type: src.Type, Content: src.Content}
	return applyResult{
		touched: map[string]*types.Entry{
			ch.Path:     nil,
			ch.RenameTo: &moved,
		},
		normalized: ch,
	}, nil
}
