package pebblestore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/kvdb/kvdbtest"
	"github.com/entropycollective/quiverdb/internal/kvdb/pebblestore"
)

func TestConformance(t *testing.T) {
	dir := t.TempDir()
	n := 0
	kvdbtest.RunConformance(t, func() kvdb.Backend {
		n++
		s, err := pebblestore.Open(filepath.Join(dir, fmt.Sprintf("store%d", n)))
		require.NoError(t, err)
		return s
	})
}

func TestVacuum(t *testing.T) {
	s, err := pebblestore.Open(filepath.Join(t.TempDir(), "v"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, []byte("k"), []byte("v")))
	require.NoError(t, s.Vacuum(ctx))
}
