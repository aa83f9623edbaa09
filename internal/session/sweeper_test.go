package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperDeletesExpiredSessions(t *testing.T) {
	store := Open(t.TempDir())
	live := store.Generate()
	dead := store.Generate()
	require.NoError(t, store.Create(Session{ID: live, ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Create(Session{ID: dead, ExpiresAt: time.Now().Add(-time.Second)}))

	var mu sync.Mutex
	var expired []string
	sweeper, err := NewSweeper(store, "@every 10ms", func() bool { return true }, func(id string) {
		mu.Lock()
		expired = append(expired, id)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(expired) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{dead}, expired)
	mu.Unlock()

	exists, err := store.Exists(live)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSweeperSkipsWhenNotLeader(t *testing.T) {
	store := Open(t.TempDir())
	dead := store.Generate()
	require.NoError(t, store.Create(Session{ID: dead, ExpiresAt: time.Now().Add(-time.Second)}))

	sweeper, err := NewSweeper(store, "@every 10ms", func() bool { return false }, nil, nil)
	require.NoError(t, err)
	sweeper.Start()
	defer sweeper.Stop()

	time.Sleep(50 * time.Millisecond)

	raw, err := store.readRaw(dead)
	require.NoError(t, err)
	assert.Equal(t, dead, raw.ID)
}
