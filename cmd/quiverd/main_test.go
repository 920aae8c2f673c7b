package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/config"
	"github.com/entropycollective/quiverdb/internal/server"
)

func TestOpenBackendBtreeAndBolt(t *testing.T) {
	btree, err := openBackend(config.StorageConfig{Backend: "btree"})
	require.NoError(t, err)
	require.NoError(t, btree.Close())

	dir := t.TempDir()
	bolt, err := openBackend(config.StorageConfig{Backend: "bolt", Path: filepath.Join(dir, "store.db")})
	require.NoError(t, err)
	require.NoError(t, bolt.Close())
}

func TestOpenBackendRejectsUnknownKind(t *testing.T) {
	_, err := openBackend(config.StorageConfig{Backend: "nope"})
	require.Error(t, err)
}

func TestStatsRefDefersUntilServerAssigned(t *testing.T) {
	stats := &statsRef{}
	require.Equal(t, server.Stats{}, stats.Stats())

	srv := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	stats.srv = srv
	got := stats.Stats()
	require.Equal(t, srv.Stats().ConnectionCount, got.ConnectionCount)
	require.Equal(t, srv.Stats().TaskCount, got.TaskCount)
}
