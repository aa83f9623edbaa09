package pathspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchStar(t *testing.T) {
	p, err := Compile("/configs/*.json")
	require.NoError(t, err)
	assert.True(t, p.Match("/configs/a.json"))
	assert.False(t, p.Match("/configs/nested/a.json"))
}

func TestMatchDoubleStar(t *testing.T) {
	p, err := Compile("/configs/**")
	require.NoError(t, err)
	assert.True(t, p.Match("/configs/a.json"))
	assert.True(t, p.Match("/configs/nested/deep/a.json"))
	assert.False(t, p.Match("/other/a.json"))
}

func TestMatchAlternatives(t *testing.T) {
	p, err := Compile("/a.json, /b.yaml")
	require.NoError(t, err)
	assert.True(t, p.Match("/a.json"))
	assert.True(t, p.Match("/b.yaml"))
	assert.False(t, p.Match("/c.txt"))
}

func TestEmptyPatternMatchesNothing(t *testing.T) {
	p, err := Compile("")
	require.NoError(t, err)
	assert.False(t, p.Match("/a.json"))
}
