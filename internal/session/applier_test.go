package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/coordination"
	"github.com/dogmahub/dogma/internal/replication"
)

func TestApplierMirrorsCreateAndRemove(t *testing.T) {
	store := Open(t.TempDir())
	applier := Applier(store)

	r, err := replication.NewReplica("r1", coordination.NewMemStore(), applier, t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	id := store.Generate()
	require.NoError(t, SubmitCreate(ctx, r, Session{ID: id, Username: "bob", ExpiresAt: time.Now().Add(time.Hour)}))

	require.Eventually(t, func() bool {
		exists, _ := store.Exists(id)
		return exists
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, SubmitRemove(ctx, r, id))

	require.Eventually(t, func() bool {
		exists, _ := store.Exists(id)
		return !exists
	}, time.Second, 10*time.Millisecond)
}

func TestApplierIgnoresUnrelatedCommands(t *testing.T) {
	store := Open(t.TempDir())
	applier := Applier(store)
	result, err := applier.Apply(replication.Command{Kind: replication.KindCreateProject})
	assert.NoError(t, err)
	assert.Nil(t, result)
}
