package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThenGetRoundTrips(t *testing.T) {
	store := Open(t.TempDir())
	id := store.Generate()
	sess := Session{ID: id, Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Create(sess))

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateDuplicateFails(t *testing.T) {
	store := Open(t.TempDir())
	sess := Session{ID: store.Generate(), Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Create(sess))
	err := store.Create(sess)
	assert.Error(t, err)
}

func TestGetMissingIsNotFound(t *testing.T) {
	store := Open(t.TempDir())
	exists, err := store.Exists("deadbeef-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get("deadbeef-0000-0000-0000-000000000000")
	assert.Error(t, err)
}

func TestSessionExpiration(t *testing.T) {
	store := Open(t.TempDir())
	id := store.Generate()
	sess := Session{ID: id, Username: "alice", ExpiresAt: time.Now().Add(10 * time.Millisecond)}
	require.NoError(t, store.Create(sess))

	time.Sleep(30 * time.Millisecond)

	_, err := store.Get(id)
	assert.Error(t, err)
	exists, err := store.Exists(id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	store := Open(t.TempDir())
	id := store.Generate()
	sess := Session{ID: id, Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Create(sess))
	created, err := store.Get(id)
	require.NoError(t, err)

	renewed := Session{ID: id, Username: "alice", ExpiresAt: time.Now().Add(2 * time.Hour)}
	require.NoError(t, store.Update(renewed))

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt.Unix(), got.CreatedAt.Unix())
	assert.True(t, got.ExpiresAt.After(created.ExpiresAt))
}

func TestUpdateMissingFails(t *testing.T) {
	store := Open(t.TempDir())
	err := store.Update(Session{ID: store.Generate()})
	assert.Error(t, err)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	store := Open(t.TempDir())
	assert.NoError(t, store.Delete(store.Generate()))
}
