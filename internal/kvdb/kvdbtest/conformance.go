// Package kvdbtest holds a conformance suite every kvdb.Backend
// implementation runs against, so btreestore, boltstore, and pebblestore
// are all checked for the same invariants instead of drifting apart.
package kvdbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/kvdb"
)

// RunConformance exercises the invariants every kvdb.Backend must satisfy,
// independent of which storage engine backs it.
func RunConformance(t *testing.T, newBackend func() kvdb.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("round-trip", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		require.NoError(t, b.Set(ctx, []byte("alpha"), []byte("one")))
		v, ok, err := b.Get(ctx, []byte("alpha"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "one", string(v))
	})

	t.Run("add rejects duplicate", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		require.NoError(t, b.Add(ctx, []byte("k"), []byte("v1")))
		err := b.Add(ctx, []byte("k"), []byte("v2"))
		assert.Error(t, err)
		v, _, _ := b.Get(ctx, []byte("k"))
		assert.Equal(t, "v1", string(v))
	})

	t.Run("compare and swap", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		ok, err := b.CompareAndSwap(ctx, []byte("k"), nil, []byte("v1"))
		require.NoError(t, err)
		assert.True(t, ok, "cas on absent key with nil old value should succeed")

		ok, err = b.CompareAndSwap(ctx, []byte("k"), []byte("wrong"), []byte("v2"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = b.CompareAndSwap(ctx, []byte("k"), []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		assert.True(t, ok)

		v, _, _ := b.Get(ctx, []byte("k"))
		assert.Equal(t, "v2", string(v))
	})

	t.Run("remove", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		require.NoError(t, b.Set(ctx, []byte("k"), []byte("v")))
		existed, err := b.Remove(ctx, []byte("k"))
		require.NoError(t, err)
		assert.True(t, existed)
		_, ok, _ := b.Get(ctx, []byte("k"))
		assert.False(t, ok)

		existed, err = b.Remove(ctx, []byte("k"))
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("cursor ascends in comparator order", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		keys := []string{"b", "a", "d", "c"}
		for _, k := range keys {
			require.NoError(t, b.Set(ctx, []byte(k), []byte(k+"v")))
		}
		cur := b.Cursor()
		defer cur.Close()
		require.NoError(t, cur.Jump(ctx, nil))
		var got []string
		for {
			k, v, ok, err := cur.Get(ctx)
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, string(k))
			assert.Equal(t, string(k)+"v", string(v))
			if err := cur.Step(ctx); err != nil {
				break
			}
		}
		assert.Equal(t, []string{"a", "b", "c", "d"}, got)
	})

	t.Run("cursor survives past-end then jump_back", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		for _, k := range []string{"a", "b"} {
			require.NoError(t, b.Set(ctx, []byte(k), []byte(k)))
		}
		cur := b.Cursor()
		defer cur.Close()
		require.NoError(t, cur.Jump(ctx, []byte("b")))
		err := cur.Step(ctx)
		assert.Error(t, err, "stepping past the last record should fail")

		require.NoError(t, cur.JumpBack(ctx, nil))
		k, _, ok, err := cur.Get(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", string(k))
	})

	t.Run("accept mutates atomically with the read", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		require.NoError(t, b.Set(ctx, []byte("k"), []byte("1")))
		err := b.Accept(ctx, []byte("k"), func(key, value []byte) (kvdb.VisitResult, error) {
			assert.Equal(t, "1", string(value))
			return kvdb.ResultReplace([]byte("2")), nil
		})
		require.NoError(t, err)
		v, _, _ := b.Get(ctx, []byte("k"))
		assert.Equal(t, "2", string(v))
	})

	t.Run("iterate visits every record exactly once", func(t *testing.T) {
		b := newBackend()
		defer b.Close()
		want := map[string]bool{"a": true, "b": true, "c": true}
		for k := range want {
			require.NoError(t, b.Set(ctx, []byte(k), []byte(k)))
		}
		seen := map[string]bool{}
		err := b.Iterate(ctx, func(key, value []byte) (kvdb.VisitResult, error) {
			seen[string(key)] = true
			return kvdb.ResultNOP, nil
		})
		require.NoError(t, err)
		assert.Equal(t, want, seen)
	})
}
