package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.ListenAddr, cfg.Server.ListenAddr)
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg := config.Default()
	cfg.Server.WorkerCount = 16
	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, loaded.Server.WorkerCount)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "magic"
	assert.Error(t, cfg.Validate())
}

func TestWatchFileTriggersOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg := config.Default()
	require.NoError(t, cfg.Save(path))

	changed := make(chan *config.Config, 1)
	w, err := config.WatchFile(path, func(c *config.Config) { changed <- c }, nil)
	require.NoError(t, err)
	defer w.Close()

	cfg.Server.WorkerCount = 32
	require.NoError(t, cfg.Save(path))

	select {
	case c := <-changed:
		assert.Equal(t, 32, c.Server.WorkerCount)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired")
	}
}
