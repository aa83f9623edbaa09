package metarepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

func TestPolicyRejectsRootPath(t *testing.T) {
	p := Policy("dogma-mirror")
	err := p("acme/config", "/", "alice")
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.NotAllowed))
}

func TestPolicyRejectsMirrorStateFromOrdinaryAuthor(t *testing.T) {
	p := Policy("dogma-mirror")
	err := p("acme/config", "/mirror_state.json", "alice")
	require.Error(t, err)
	assert.True(t, dogmaerrors.Is(err, dogmaerrors.NotAllowed))

	err = p("acme/config", "/subdir/mirror_state.json", "alice")
	require.Error(t, err)
}

func TestPolicyAllowsMirrorStateFromSystemAuthor(t *testing.T) {
	p := Policy("dogma-mirror")
	assert.NoError(t, p("acme/config", "/mirror_state.json", "dogma-mirror"))
}

func TestPolicyAllowsOrdinaryPaths(t *testing.T) {
	p := Policy("dogma-mirror")
	assert.NoError(t, p("acme/config", "/a.json", "alice"))
}
