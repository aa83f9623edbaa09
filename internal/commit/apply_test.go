package commit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/types"
)

func newTestSnapshot(t *testing.T, entries map[string]types.Entry) *snapshot {
	t.Helper()
	store, err := objectstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	tree := &objectstore.Tree{Entries: map[string]objectstore.TreeEntry{}}
	for path, e := range entries {
		blobID, err := store.Put(objectstore.KindBlob, e.Content)
		require.NoError(t, err)
		tree.Entries[path] = objectstore.TreeEntry{Type: string(e.Type), BlobID: blobID}
	}
	return newSnapshot(store, tree)
}

func TestApplyUpsertTextNoop(t *testing.T) {
	snap := newTestSnapshot(t, map[string]types.Entry{
		"/a.txt": {Type: types.EntryTypeText, Content: []byte("hello")},
	})
	res, err := applyChange(snap, types.Change{Path: "/a.txt", Kind: types.ChangeUpsertText, Content: []byte("hello")})
	require.NoError(t, err)
	assert.True(t, res.noop)
}

func TestApplyUpsertJSONSameValueIsNoop(t *testing.T) {
	snap := newTestSnapshot(t, map[string]types.Entry{
		"/a.json": {Type: types.EntryTypeJSON, Content: []byte(`{"x":1}`)},
	})
	res, err := applyChange(snap, types.Change{Path: "/a.json", Kind: types.ChangeUpsertJSON, Content: []byte(`{"x": 1}`)})
	require.NoError(t, err)
	assert.True(t, res.noop)
}

func TestApplyRemoveMissingIsNoop(t *testing.T) {
	snap := newTestSnapshot(t, nil)
	res, err := applyChange(snap, types.Change{Path: "/gone.txt", Kind: types.ChangeRemove})
	require.NoError(t, err)
	assert.True(t, res.noop)
}

func TestApplyRemoveExisting(t *testing.T) {
	snap := newTestSnapshot(t, map[string]types.Entry{
		"/a.txt": {Type: types.EntryTypeText, Content: []byte("hello")},
	})
	res, err := applyChange(snap, types.Change{Path: "/a.txt", Kind: types.ChangeRemove})
	require.NoError(t, err)
	require.Contains(t, res.touched, "/a.txt")
	assert.Nil(t, res.touched["/a.txt"])
}

func TestApplyRenameMovesContent(t *testing.T) {
	snap := newTestSnapshot(t, map[string]types.Entry{
		"/a.txt": {Type: types.EntryTypeText, Content: []byte("hello")},
	})
	res, err := applyChange(snap, types.Change{Path: "/a.txt", Kind: types.ChangeRename, RenameTo: "/b.txt"})
	require.NoError(t, err)
	require.Contains(t, res.touched, "/a.txt")
	require.Contains(t, res.touched, "/b.txt")
	assert.Nil(t, res.touched["/a.txt"])
	require.NotNil(t, res.touched["/b.txt"])
	assert.Equal(t, []byte("hello"), res.touched["/b.txt"].Content)
}

func TestApplyRenameOntoExistingFails(t *testing.T) {
	snap := newTestSnapshot(t, map[string]types.Entry{
		"/a.txt": {Type: types.EntryTypeText, Content: []byte("hello")},
		"/b.txt": {Type: types.EntryTypeText, Content: []byte("world")},
	})
	_, err := applyChange(snap, types.Change{Path: "/a.txt", Kind: types.ChangeRename, RenameTo: "/b.txt"})
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.AlreadyExists))
}

func TestApplyPatchMissingPathFails(t *testing.T) {
	snap := newTestSnapshot(t, nil)
	_, err := applyChange(snap, types.Change{Path: "/missing.json", Kind: types.ChangeApplyPatch, Content: []byte(`[]`)})
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.NotFound))
}

func TestApplyTextPatchRoundTrip(t *testing.T) {
	snap := newTestSnapshot(t, map[string]types.Entry{
		"/a.txt": {Type: types.EntryTypeText, Content: []byte("line one\nline two\n")},
	})
	patchDoc := diffText("line one\nline two\n", "line one\nline three\n")
	res, err := applyChange(snap, types.Change{Path: "/a.txt", Kind: types.ChangeApplyTxtPch, Content: []byte(patchDoc)})
	require.NoError(t, err)
	require.Contains(t, res.touched, "/a.txt")
	assert.Equal(t, "line one\nline three\n", string(res.touched["/a.txt"].Content))
}
