package metarepo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/types"
)

func TestMigrateLegacySplitsAggregateIntoPerElementFiles(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "seed legacy", "", types.MarkupPlaintext, []types.Change{
		upsertJSON(legacyMirrorsFile, `[{"id":"m1","repoId":"bar"},{"id":"m2","repoId":"baz"}]`),
	})
	require.NoError(t, err)

	require.NoError(t, MigrateLegacy(e, q, "meta1", "alice"))

	_, err = q.Get(types.HeadRevision, legacyMirrorsFile)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.NotFound))

	m1, err := q.Get(types.HeadRevision, "/mirrors/m1.json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(m1.Content, &decoded))
	assert.Equal(t, "m1", decoded["id"])

	_, err = q.Get(types.HeadRevision, "/mirrors/m2.json")
	require.NoError(t, err)
}

func TestMigrateLegacyIsIdempotent(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "seed legacy", "", types.MarkupPlaintext, []types.Change{
		upsertJSON(legacyMirrorsFile, `[{"id":"m1","repoId":"bar"}]`),
	})
	require.NoError(t, err)

	require.NoError(t, MigrateLegacy(e, q, "meta1", "alice"))
	require.NoError(t, MigrateLegacy(e, q, "meta1", "alice"))

	_, err = q.Get(types.HeadRevision, "/mirrors/m1.json")
	require.NoError(t, err)
}

func TestMigrateLegacySuffixesDuplicateIDs(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "seed legacy", "", types.MarkupPlaintext, []types.Change{
		upsertJSON(legacyCredentialsFile, `[{"id":"c1","token":"a"},{"id":"c1","token":"b"}]`),
	})
	require.NoError(t, err)

	require.NoError(t, MigrateLegacy(e, q, "meta1", "alice"))

	first, err := q.Get(types.HeadRevision, "/credentials/c1.json")
	require.NoError(t, err)
	second, err := q.Get(types.HeadRevision, "/credentials/c1-1.json")
	require.NoError(t, err)
	assert.Contains(t, string(first.Content), `"a"`)
	assert.Contains(t, string(second.Content), `"b"`)
}

func TestMigrateLegacyGeneratesIDForIDlessElement(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "seed legacy", "", types.MarkupPlaintext, []types.Change{
		upsertJSON(legacyMirrorsFile, `[{"repoId":"bar"}]`),
	})
	require.NoError(t, err)

	require.NoError(t, MigrateLegacy(e, q, "meta1", "alice"))

	entries, err := q.Find(types.HeadRevision, mirrorsPattern)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `/mirrors/gen-[0-9a-f]+\.json$`, entries[0].Path)
}

func TestMigrateLegacyNoopWhenNoAggregateFiles(t *testing.T) {
	e, q := newTestRig(t, "meta1")
	_, _, err := e.Push("meta1", 0, false, "alice", "seed unrelated", "", types.MarkupPlaintext, []types.Change{
		upsertJSON("/mirrors/m1.json", `{"id":"m1"}`),
	})
	require.NoError(t, err)

	require.NoError(t, MigrateLegacy(e, q, "meta1", "alice"))

	entries, err := q.Find(types.HeadRevision, mirrorsPattern)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDedupeAppendsIncrementingSuffix(t *testing.T) {
	used := map[string]bool{"m1": true, "m1-1": true}
	assert.Equal(t, "m1-2", dedupe("m1", used))
	assert.Equal(t, "m2", dedupe("m2", used))
}
