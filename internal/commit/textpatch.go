// textpatch.go implements spec.md's APPLY_TEXT_PATCH change kind (a
// unified diff applied to a text entry) and getDiff's text-entry case,
// both on top of sergi/go-diff's diffmatchpatch, grounded in the pack's
// manifests that pull that library in for line-oriented diffing
// (other_examples/manifests/0xavi0-fleet, .../steveyegge-beads).
package commit

import (
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var dmp = diffmatchpatch.New()

// applyTextPatch applies a unified-diff-style patch (as produced by
// diffmatchpatch's PatchToText) to current text.
func applyTextPatch(current string, patchText string) (string, error) {
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "malformed text patch")
	}
	out, applied := dmp.PatchApply(patches, current)
	for _, ok := range applied {
		if !ok {
			return "", dogmaerrors.New(dogmaerrors.ChangePatchConflict, "text patch hunk did not apply")
		}
	}
	return out, nil
}

// diffText returns a unified-diff patch document transforming oldText
// into newText.
func diffText(oldText, newText string) string {
	patches := dmp.PatchMake(oldText, newText)
	return dmp.PatchToText(patches)
}
