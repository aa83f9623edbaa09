// diff.go generates an RFC 6902 patch document from two JSON values.
// Nothing in the corpus ships a diff-to-JSON-Patch generator (evanphx/
// json-patch only applies patches, and the pack's jsondiff-style
// libraries aren't among the retrieved examples), so this is a small,
// self-contained recursive diff written directly against encoding/json's
// generic decode shape (map[string]any / []any / scalars) rather than
// reached for a library the corpus never demonstrates. It is intentionally
// not general-purpose: it only needs to produce *a* correct patch from
// old to new, not a minimal one.
package commit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// diffJSONPatch returns an RFC 6902 document transforming oldVal into
// newVal, rooted at pointer (empty for the document root).
func diffJSONPatch(oldVal, newVal any, pointer string) []patchOp {
	if reflect.DeepEqual(oldVal, newVal) {
		return nil
	}

	oldMap, oldIsMap := oldVal.(map[string]any)
	newMap, newIsMap := newVal.(map[string]any)
	if oldIsMap && newIsMap {
		return diffObjects(oldMap, newMap, pointer)
	}

	oldArr, oldIsArr := oldVal.([]any)
	newArr, newIsArr := newVal.([]any)
	if oldIsArr && newIsArr {
		return diffArrays(oldArr, newArr, pointer)
	}

	return []patchOp{replaceOp(pointer, newVal)}
}

func diffObjects(oldMap, newMap map[string]any, pointer string) []patchOp {
	var ops []patchOp
	for k, oldChild := range oldMap {
		p := pointer + "/" + escapePointerSegment(k)
		if newChild, ok := newMap[k]; ok {
			ops = append(ops, diffJSONPatch(oldChild, newChild, p)...)
		} else {
			ops = append(ops, patchOp{Op: "remove", Path: p})
		}
	}
	for k, newChild := range newMap {
		if _, ok := oldMap[k]; !ok {
			p := pointer + "/" + escapePointerSegment(k)
			ops = append(ops, patchOp{Op: "add", Path: p, Value: mustMarshal(newChild)})
		}
	}
	return ops
}

// diffArrays replaces differing indices, removes trailing elements the
// new array no longer has, and appends new trailing elements. It does
// not attempt a minimal edit script (e.g. detecting an insertion in the
// middle as a shift); config file arrays in this system are small and
// this keeps the generator simple and obviously correct.
func diffArrays(oldArr, newArr []any, pointer string) []patchOp {
	var ops []patchOp
	minLen := len(oldArr)
	if len(newArr) < minLen {
		minLen = len(newArr)
	}
	for i := 0; i < minLen; i++ {
		p := fmt.Sprintf("%s/%d", pointer, i)
		ops = append(ops, diffJSONPatch(oldArr[i], newArr[i], p)...)
	}
	for i := len(oldArr) - 1; i >= minLen; i-- {
		ops = append(ops, patchOp{Op: "remove", Path: fmt.Sprintf("%s/%d", pointer, i)})
	}
	for i := minLen; i < len(newArr); i++ {
		ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("%s/-", pointer), Value: mustMarshal(newArr[i])})
	}
	return ops
}

func replaceOp(pointer string, v any) patchOp {
	if pointer == "" {
		pointer = "/"
	}
	return patchOp{Op: "replace", Path: pointer, Value: mustMarshal(v)}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func escapePointerSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}
