package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breeswish/tikv/pkg/logging"
)

func TestDefaultConfigValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadPartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"worker": {"max_read_tasks": 7},
		"logging": {"level": "debug"}
	}`), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Worker.MaxReadTasks)
	assert.Equal(t, "debug", c.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultConfig().Worker.ReadHighConcurrency, c.Worker.ReadHighConcurrency)
	assert.Equal(t, DefaultConfig().Server.ListenAddr, c.Server.ListenAddr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"worker": {"max_read_tasks": -1}}`), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	original := DefaultConfig()
	original.Worker.MaxReadTasks = 123
	require.NoError(t, original.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 4)
	w, err := Watch(path, logging.GetGlobalLogger(), func(c *Config) {
		reloaded <- c
	})
	require.NoError(t, err)
	defer w.Close()

	updated := DefaultConfig()
	updated.Worker.MaxReadTasks = 99
	require.NoError(t, updated.Save(path))

	select {
	case c := <-reloaded:
		assert.Equal(t, 99, c.Worker.MaxReadTasks)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not deliver the reloaded configuration")
	}
}

func TestWatcherSkipsInvalidUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 4)
	w, err := Watch(path, logging.GetGlobalLogger(), func(c *Config) {
		reloaded <- c
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))

	select {
	case <-reloaded:
		t.Fatal("invalid configuration must not be delivered")
	case <-time.After(500 * time.Millisecond):
	}
}
