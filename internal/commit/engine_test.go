package commit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/types"
)

func newTestEngine(t *testing.T, repo string) *Engine {
	t.Helper()
	store, err := objectstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	e := New(nil, nil)
	e.Register(repo, store)
	return e
}

func upsertJSON(path, jsonContent string) types.Change {
	return types.Change{Path: path, Kind: types.ChangeUpsertJSON, Content: []byte(jsonContent)}
}

func TestPushCreateThenRead(t *testing.T) {
	e := newTestEngine(t, "repo1")

	rev, _, err := e.Push("repo1", 0, false, "alice", "create x", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"b"}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	rev, _, err = e.Push("repo1", 0, false, "alice", "update x", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"c"}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)
}

func TestPushRedundantIsRejected(t *testing.T) {
	e := newTestEngine(t, "repo1")

	_, _, err := e.Push("repo1", 0, false, "alice", "create x", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"b"}`)})
	require.NoError(t, err)

	_, _, err = e.Push("repo1", 0, false, "alice", "no-op", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"b"}`)})
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.RedundantChange))

	head, err := e.stores["repo1"].GetHead()
	require.NoError(t, err)
	assert.Equal(t, int64(1), head.Revision)
}

func TestPushOptimisticConflict(t *testing.T) {
	e := newTestEngine(t, "repo1")

	_, _, err := e.Push("repo1", 0, false, "alice", "create x", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"b"}`)})
	require.NoError(t, err)

	rev, _, err := e.Push("repo1", 1, false, "alice", "second", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/y.json", `{"a":"b"}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	_, _, err = e.Push("repo1", 1, false, "bob", "stale base", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/z.json", `{"a":"b"}`)})
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.ChangeConflict))
}

func TestPushUpsertJSONNormalizesToPatch(t *testing.T) {
	e := newTestEngine(t, "repo1")

	_, _, err := e.Push("repo1", 0, false, "alice", "create x", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"b","keep":1}`)})
	require.NoError(t, err)

	_, normalized, err := e.Push("repo1", 0, false, "alice", "update a", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"c","keep":1}`)})
	require.NoError(t, err)
	require.Len(t, normalized, 1)
	assert.Equal(t, types.ChangeApplyPatch, normalized[0].Kind)

	var ops []patchOp
	require.NoError(t, json.Unmarshal(normalized[0].Content, &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "replace", ops[0].Op)
	assert.Equal(t, "/a", ops[0].Path)
}

func TestPushSafeReplaceMismatchFailsWithPatchConflict(t *testing.T) {
	e := newTestEngine(t, "repo1")

	_, _, err := e.Push("repo1", 0, false, "alice", "create x", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"b"}`)})
	require.NoError(t, err)

	patch := `[{"op":"safeReplace","path":"/a","oldValue":"not-b","value":"z"}]`
	_, _, err = e.Push("repo1", 0, false, "alice", "bad cas", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/x.json", Kind: types.ChangeApplyPatch, Content: []byte(patch)}})
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.ChangePatchConflict))
}

func TestPushPolicyRejectsDisallowedPath(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	e := New(func(repo, path, author string) error {
		if path == "/forbidden.json" {
			return dogmaerrors.New(dogmaerrors.NotAllowed, "reserved path")
		}
		return nil
	}, nil)
	e.Register("repo1", store)

	_, _, err = e.Push("repo1", 0, false, "alice", "bad path", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/forbidden.json", `{"a":"b"}`)})
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.InvalidPush))
}

func TestPushNotifiesWatchers(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	var gotRepo string
	var gotRevision int64
	var gotTouched []string
	e := New(nil, func(repo string, revision int64, touched []string) {
		gotRepo, gotRevision, gotTouched = repo, revision, touched
	})
	e.Register("repo1", store)

	_, _, err = e.Push("repo1", 0, false, "alice", "create x", "", types.MarkupPlaintext,
		[]types.Change{upsertJSON("/x.json", `{"a":"b"}`)})
	require.NoError(t, err)

	assert.Equal(t, "repo1", gotRepo)
	assert.Equal(t, int64(1), gotRevision)
	assert.Equal(t, []string{"/x.json"}, gotTouched)
}
