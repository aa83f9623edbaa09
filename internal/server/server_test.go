package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/config"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.ReplicaID = "test-replica"

	srv, err := New(cfg)
	require.NoError(t, err)
	return srv
}

func TestNewWiresEveryComponent(t *testing.T) {
	srv := newTestServer(t)
	assert.NotNil(t, srv.engine)
	assert.NotNil(t, srv.watch)
	assert.NotNil(t, srv.manager)
	assert.NotNil(t, srv.replica)
	assert.NotNil(t, srv.sessions)
	assert.NotNil(t, srv.sweeper)
	assert.NotNil(t, srv.credentials)
	assert.NotNil(t, srv.mirrorScheduler)
	assert.NotNil(t, srv.mirrorSyncer)
}

func TestCreateRepositoryRegistersQueryEngineAndIndexer(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.manager.CreateProject("acme"))
	require.NoError(t, srv.manager.CreateRepository("acme", "widgets"))

	qe, err := srv.queryEngineFor("acme/widgets")
	require.NoError(t, err)
	assert.NotNil(t, qe)

	_, err = srv.queryEngineFor("acme/unknown")
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.NotFound))
}

func TestPushNotifiesIndexerAndMetaListerSeesMirrors(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.manager.CreateProject("acme"))
	require.NoError(t, srv.manager.CreateRepository("acme", "widgets"))

	_, _, err := srv.engine.Push("acme/widgets", 0, false, "alice", "add mirror", "", types.MarkupPlaintext, []types.Change{
		{Path: "/mirrors/m1.json", Kind: types.ChangeUpsertJSON,
			Content: []byte(`{"id":"m1","repoId":"acme/widgets","schedule":"@every 1m","enabled":true}`)},
	})
	require.NoError(t, err)

	mirrors, err := srv.metaLister().ListMirrors()
	require.NoError(t, err)
	require.Len(t, mirrors, 1)
	assert.Equal(t, "m1", mirrors[0].ID)
}

func TestReopenExistingRepositoriesRebuildsStateAfterRestart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.ReplicaID = "test-replica"

	first, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, first.manager.CreateProject("acme"))
	require.NoError(t, first.manager.CreateRepository("acme", "widgets"))
	_, _, err = first.engine.Push("acme/widgets", 0, false, "alice", "seed", "", types.MarkupPlaintext,
		[]types.Change{{Path: "/x.json", Kind: types.ChangeUpsertJSON, Content: []byte(`{"a":1}`)}})
	require.NoError(t, err)

	second, err := New(cfg)
	require.NoError(t, err)

	qe, err := second.queryEngineFor("acme/widgets")
	require.NoError(t, err)
	entry, err := qe.Get(types.HeadRevision, "/x.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(entry.Content))
}
