package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	id, err := s.Put(KindBlob, []byte(`{"a":"b"}`))
	require.NoError(t, err)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, string(got))
}

func TestPutIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	id1, err := s.Put(KindBlob, []byte("hello"))
	require.NoError(t, err)
	id2, err := s.Put(KindBlob, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestGetMissingIsNotFound(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Get("deadbeef")
	require.Error(t, err)
}

func TestEncryptedRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptor(key)
	require.NoError(t, err)

	s, err := Open(t.TempDir(), enc)
	require.NoError(t, err)

	id, err := s.Put(KindBlob, []byte("secret payload"))
	require.NoError(t, err)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "secret payload", string(got))
}

func TestCommitListWalksParentChain(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	var parent string
	var ids []string
	for rev := int64(1); rev <= 3; rev++ {
		id, err := s.PutCommit(&CommitObject{Revision: rev, ParentID: parent, TreeID: "t"})
		require.NoError(t, err)
		ids = append(ids, id)
		parent = id
	}

	chain, err := s.CommitList(ids[2], 1, 0)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.EqualValues(t, 1, chain[0].Revision)
	assert.EqualValues(t, 3, chain[2].Revision)
}
