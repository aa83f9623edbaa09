package dogmaerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(NotFound, "repo %q", "bar")
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, AlreadyExists))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Corruption, cause, "reading object %s", "abcd")
	require.Error(t, err)
	assert.True(t, Is(err, Corruption))
	assert.ErrorIs(t, err, cause)
}

func TestWrapNilIsNil(t *testing.T) {
	err := Wrap(Corruption, nil, "no-op")
	assert.Nil(t, err)
}
