package query

import (
	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/types"
)

func diffJSON(path string, oldDoc, newDoc []byte) (types.Change, error) {
	patchDoc, err := commit.DiffJSONPatch(oldDoc, newDoc)
	if err != nil {
		return types.Change{}, err
	}
	return types.Change{Path: path, Kind: types.ChangeApplyPatch, Content: patchDoc}, nil
}

func diffText(path string, oldContent, newContent []byte) types.Change {
	patch := commit.DiffText(string(oldContent), string(newContent))
	return types.Change{Path: path, Kind: types.ChangeApplyTxtPch, Content: []byte(patch)}
}
