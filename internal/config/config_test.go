package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dogma.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: /var/lib/dogma\n"), 0o644))

	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/dogma", cfg.DataDir)
	assert.Equal(t, 4, cfg.MirrorWorkers)
	assert.Equal(t, "0 * * * * *", cfg.SessionSweepCron)
}

func TestSetAndTriggerNotifiesCallbacks(t *testing.T) {
	Set(DefaultConfig())
	var seen bool
	id := OnChange(func(c *Config) error {
		seen = c.ReadOnly
		return nil
	})
	defer Unregister(id)

	cfg := DefaultConfig()
	cfg.ReadOnly = true
	require.NoError(t, SetAndTrigger(cfg))
	assert.True(t, seen)
	assert.True(t, Get().ReadOnly)
}
