package metarepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/query"
	"github.com/dogmahub/dogma/internal/types"
)

func newTestRig(t *testing.T, repo string) (*commit.Engine, *query.Engine) {
	t.Helper()
	store, err := objectstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	e := commit.New(nil, nil)
	e.Register(repo, store)
	return e, query.New(store)
}

func upsertJSON(path, content string) types.Change {
	return types.Change{Path: path, Kind: types.ChangeUpsertJSON, Content: []byte(content)}
}

func TestIndexerListMirrorsReadsMirrorFiles(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "add mirror", "", types.MarkupPlaintext, []types.Change{
		upsertJSON("/mirrors/m1.json", `{"id":"m1","repoId":"bar","schedule":"@every 1m","enabled":true}`),
	})
	require.NoError(t, err)

	ix := New(q, "meta1")
	mirrors, err := ix.ListMirrors()
	require.NoError(t, err)
	require.Len(t, mirrors, 1)
	assert.Equal(t, "m1", mirrors[0].ID)
	assert.True(t, mirrors[0].Enabled)
}

func TestIndexerCredentialsAreRedacted(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "add cred", "", types.MarkupPlaintext, []types.Change{
		upsertJSON("/credentials/c1.json", `{"id":"c1","type":"TOKEN","enabled":true,"patterns":["*"],"token":"secret"}`),
	})
	require.NoError(t, err)

	ix := New(q, "meta1")
	creds, err := ix.Credentials()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Empty(t, creds[0].Token)
}

func TestIndexerRebuildsOnlyWhenInvalidated(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "add mirror", "", types.MarkupPlaintext, []types.Change{
		upsertJSON("/mirrors/m1.json", `{"id":"m1","repoId":"bar","schedule":"@every 1m"}`),
	})
	require.NoError(t, err)

	ix := New(q, "meta1")
	mirrors, err := ix.ListMirrors()
	require.NoError(t, err)
	require.Len(t, mirrors, 1)

	// A commit to an unrelated path should not invalidate the cache.
	_, _, err = e.Push("meta1", 1, false, "alice", "unrelated", "", types.MarkupPlaintext, []types.Change{
		upsertJSON("/notes/owner.json", `{"owner":"team-x"}`),
	})
	require.NoError(t, err)
	ix.OnCommit("meta1", 2, []string{"/notes/owner.json"})

	mirrors, err = ix.ListMirrors()
	require.NoError(t, err)
	assert.Len(t, mirrors, 1)

	ix.OnCommit("meta1", 2, []string{"/mirrors/m1.json"})
	_, _, err = e.Push("meta1", 2, false, "alice", "add second mirror", "", types.MarkupPlaintext, []types.Change{
		upsertJSON("/mirrors/m2.json", `{"id":"m2","repoId":"baz","schedule":"@every 1m"}`),
	})
	require.NoError(t, err)
	ix.OnCommit("meta1", 3, []string{"/mirrors/m2.json"})

	mirrors, err = ix.ListMirrors()
	require.NoError(t, err)
	assert.Len(t, mirrors, 2)
}

func TestIndexerTokenAndRepoAccessLookup(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "seed", "", types.MarkupPlaintext, []types.Change{
		upsertJSON("/tokens/abc.json", `{"sub":"alice"}`),
		upsertJSON("/repos/bar/owner.json", `{"owner":"team-x"}`),
	})
	require.NoError(t, err)

	ix := New(q, "meta1")
	_, ok, err := ix.Token("/tokens/abc.json")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = ix.RepoAccess("/repos/bar/owner.json")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = ix.Token("/tokens/nope.json")
	require.NoError(t, err)
	assert.False(t, ok)
}
