package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/pathspec"
	"github.com/dogmahub/dogma/internal/types"
)

func newTestFixture(t *testing.T) (*objectstore.Store, *commit.Engine) {
	t.Helper()
	store, err := objectstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	eng := commit.New(nil, nil)
	eng.Register("repo1", store)
	return store, eng
}

func TestGetIdentity(t *testing.T) {
	store, eng := newTestFixture(t)
	_, _, err := eng.Push("repo1", 0, false, "alice", "create", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/a.txt", Kind: types.ChangeUpsertText, Content: []byte("hello")}})
	require.NoError(t, err)

	q := New(store)
	entry, err := q.Get(types.HeadRevision, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(entry.Content))
}

func TestGetMissingIsNotFound(t *testing.T) {
	store, _ := newTestFixture(t)
	q := New(store)
	_, err := q.Get(types.HeadRevision, "/missing.txt")
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.NotFound))
}

func TestGetPathJSON(t *testing.T) {
	store, eng := newTestFixture(t)
	_, _, err := eng.Push("repo1", 0, false, "alice", "create", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/a.json", Kind: types.ChangeUpsertJSON, Content: []byte(`{"spec":{"replicas":3}}`)}})
	require.NoError(t, err)

	q := New(store)
	entry, err := q.GetPath(types.HeadRevision, "/a.json", ".spec.replicas")
	require.NoError(t, err)
	assert.Equal(t, "3", string(entry.Content))
}

func TestFindMatchesGlob(t *testing.T) {
	store, eng := newTestFixture(t)
	_, _, err := eng.Push("repo1", 0, false, "alice", "create", "", types.MarkupPlaintext, []types.Change{
		{Path: "/dir/a.txt", Kind: types.ChangeUpsertText, Content: []byte("1")},
		{Path: "/dir/b.txt", Kind: types.ChangeUpsertText, Content: []byte("2")},
		{Path: "/other.txt", Kind: types.ChangeUpsertText, Content: []byte("3")},
	})
	require.NoError(t, err)

	q := New(store)
	pattern, err := pathspec.Compile("/dir/*")
	require.NoError(t, err)
	entries, err := q.Find(types.HeadRevision, pattern)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/dir/a.txt", entries[0].Path)
	assert.Equal(t, "/dir/b.txt", entries[1].Path)
}

func TestGetHistoryFiltersByPattern(t *testing.T) {
	store, eng := newTestFixture(t)
	_, _, err := eng.Push("repo1", 0, false, "alice", "add a", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/a.txt", Kind: types.ChangeUpsertText, Content: []byte("1")}})
	require.NoError(t, err)
	_, _, err = eng.Push("repo1", 0, false, "alice", "add b", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/b.txt", Kind: types.ChangeUpsertText, Content: []byte("2")}})
	require.NoError(t, err)

	q := New(store)
	pattern, err := pathspec.Compile("/a.txt")
	require.NoError(t, err)
	history, err := q.GetHistory(types.Revision(1), types.HeadRevision, pattern)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "add a", history[0].Summary)
}

func TestGetDiffJSON(t *testing.T) {
	store, eng := newTestFixture(t)
	_, _, err := eng.Push("repo1", 0, false, "alice", "create", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/a.json", Kind: types.ChangeUpsertJSON, Content: []byte(`{"x":1}`)}})
	require.NoError(t, err)
	_, _, err = eng.Push("repo1", 0, false, "alice", "update", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/a.json", Kind: types.ChangeUpsertJSON, Content: []byte(`{"x":2}`)}})
	require.NoError(t, err)

	q := New(store)
	change, err := q.GetDiff(types.Revision(1), types.Revision(2), "/a.json")
	require.NoError(t, err)
	assert.Equal(t, types.ChangeApplyPatch, change.Kind)
}
