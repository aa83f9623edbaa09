package commit

import "encoding/json"

// DiffJSONPatch returns an RFC 6902 patch document transforming oldDoc
// into newDoc, for use by the Query Engine's getDiff (spec.md section
// 4.C) as well as the Commit Engine's own UPSERT_JSON normalization.
func DiffJSONPatch(oldDoc, newDoc []byte) ([]byte, error) {
	var oldVal, newVal any
	if len(oldDoc) > 0 {
		if err := json.Unmarshal(oldDoc, &oldVal); err != nil {
			return nil, err
		}
	}
	if len(newDoc) > 0 {
		if err := json.Unmarshal(newDoc, &newVal); err != nil {
			return nil, err
		}
	}
	ops := diffJSONPatch(oldVal, newVal, "")
	return json.Marshal(ops)
}

// DiffText returns a unified-diff patch document transforming oldText
// into newText, for use by the Query Engine's getDiff over non-JSON
// entries.
func DiffText(oldText, newText string) string {
	return diffText(oldText, newText)
}

// ApplyTextPatch applies a unified-diff patch document to text. It is
// exported for callers outside this package; no other package in this
// module calls it.
func ApplyTextPatch(text, patchText string) (string, error) {
	return applyTextPatch(text, patchText)
}
