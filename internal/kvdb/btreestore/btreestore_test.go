package btreestore_test

import (
	"testing"

	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/kvdb/btreestore"
	"github.com/entropycollective/quiverdb/internal/kvdb/kvdbtest"
)

func TestConformance(t *testing.T) {
	kvdbtest.RunConformance(t, func() kvdb.Backend { return btreestore.New() })
}
