// jsonpatch.go adapts the teacher's use of evanphx/json-patch
// (internal/_teacherref/patch/jsonpatch.go applies a patch document to a
// JSON byte slice to normalize a Kubernetes object) to spec.md's
// APPLY_JSON_PATCH change kind, extended with the safeReplace
// test-and-set operation the RFC 6902 library doesn't know about.
package commit

import (
	"bytes"
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

type patchOp struct {
	Op       string          `json:"op"`
	Path     string          `json:"path"`
	Value    json.RawMessage `json:"value,omitempty"`
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	From     string          `json:"from,omitempty"`
}

// applyJSONPatch applies a (possibly safeReplace-extended) RFC 6902
// document to current, returning the patched document. safeReplace ops
// are resolved against the live document before delegating the rest of
// the patch to evanphx/json-patch: this mirrors how "test" ops already
// gate a standard patch, just with an explicit expected-value field
// instead of a side document.
func applyJSONPatch(current, patchDoc []byte) ([]byte, error) {
	var ops []patchOp
	if err := json.Unmarshal(patchDoc, &ops); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "malformed json patch")
	}

	doc := current
	rewritten := make([]patchOp, 0, len(ops))
	for _, op := range ops {
		if op.Op != "safeReplace" {
			rewritten = append(rewritten, op)
			continue
		}

		actual, err := extractPointer(doc, op.Path)
		if err != nil {
			return nil, dogmaerrors.Wrap(dogmaerrors.ChangePatchConflict, err, "safeReplace at %s", op.Path)
		}
		if !jsonEqual(actual, op.OldValue) {
			return nil, dogmaerrors.New(dogmaerrors.ChangePatchConflict,
				"safeReplace at %s: current value does not match oldValue", op.Path)
		}
		rewritten = append(rewritten, patchOp{Op: "replace", Path: op.Path, Value: op.Value})
	}

	encoded, err := json.Marshal(rewritten)
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "re-encoding patch")
	}

	patch, err := jsonpatch.DecodePatch(encoded)
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "decoding json patch")
	}

	out, err := patch.Apply(doc)
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.ChangePatchConflict, err, "applying json patch")
	}
	return out, nil
}

// extractPointer resolves an RFC 6901 JSON pointer against doc by
// decoding doc and walking the pointer's segments by hand. An empty
// pointer or "/" yields the whole document; a segment naming a missing
// key, an out-of-range index or a non-container yields null.
func extractPointer(doc []byte, pointer string) (json.RawMessage, error) {
	var root any
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, err
	}
	if pointer == "" || pointer == "/" {
		return json.Marshal(root)
	}
	segs := splitPointer(pointer)
	cur := root
	for _, seg := range segs {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return json.RawMessage("null"), nil
			}
			cur = next
		case []any:
			idx, ok := arrayIndex(seg, len(v))
			if !ok {
				return json.RawMessage("null"), nil
			}
			cur = v[idx]
		default:
			return json.RawMessage("null"), nil
		}
	}
	return json.Marshal(cur)
}

func jsonEqual(a, b json.RawMessage) bool {
	if len(b) == 0 {
		b = json.RawMessage("null")
	}
	if len(a) == 0 {
		a = json.RawMessage("null")
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return bytes.Equal(mustCanonical(av), mustCanonical(bv))
}

func mustCanonical(v any) []byte {
	b, _ := json.Marshal(v)
	var rt any
	_ = json.Unmarshal(b, &rt)
	out, _ := json.Marshal(rt)
	return out
}
