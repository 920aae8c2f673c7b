package boltstore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/kvdb/boltstore"
	"github.com/entropycollective/quiverdb/internal/kvdb/kvdbtest"
)

func TestConformance(t *testing.T) {
	dir := t.TempDir()
	n := 0
	kvdbtest.RunConformance(t, func() kvdb.Backend {
		n++
		s, err := boltstore.Open(filepath.Join(dir, fmt.Sprintf("store%d.db", n)))
		require.NoError(t, err)
		return s
	})
}

func TestVacuum(t *testing.T) {
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, []byte("k"), []byte("v")))
	require.NoError(t, s.Vacuum(ctx))
}
