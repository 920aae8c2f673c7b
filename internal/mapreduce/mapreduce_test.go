package mapreduce_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/kvdb/btreestore"
	"github.com/entropycollective/quiverdb/internal/mapreduce"
)

func TestWordCountJob(t *testing.T) {
	source := btreestore.New()
	ctx := context.Background()
	require.NoError(t, source.Set(ctx, []byte("1"), []byte("this is a pen")))
	require.NoError(t, source.Set(ctx, []byte("2"), []byte("what a beautiful pen this is")))
	require.NoError(t, source.Set(ctx, []byte("3"), []byte("she is beautiful")))

	var mu sync.Mutex
	counts := make(map[string]int)
	var order []string

	job := &mapreduce.Job{
		Source: source,
		DBNum:  2,
		Map: func(ctx context.Context, key, value []byte, emit mapreduce.EmitFunc) error {
			for _, word := range strings.Fields(string(value)) {
				if err := emit([]byte(word), nil); err != nil {
					return err
				}
			}
			return nil
		},
		Reduce: func(ctx context.Context, key []byte, values *mapreduce.ValueIterator) (bool, error) {
			n := 0
			for {
				_, ok := values.Next()
				if !ok {
					break
				}
				n++
			}
			mu.Lock()
			counts[string(key)] = n
			order = append(order, string(key))
			mu.Unlock()
			return true, nil
		},
	}

	require.NoError(t, job.Run(ctx))

	expected := map[string]int{
		"a": 2, "beautiful": 2, "is": 3, "pen": 2, "she": 1, "this": 2, "what": 1,
	}
	assert.Equal(t, expected, counts)
	assert.Equal(t, []string{"a", "beautiful", "is", "pen", "she", "this", "what"}, order)
}

func TestReduceAbortStopsRemainingGroups(t *testing.T) {
	source := btreestore.New()
	ctx := context.Background()
	require.NoError(t, source.Set(ctx, []byte("k1"), []byte("alpha")))
	require.NoError(t, source.Set(ctx, []byte("k2"), []byte("beta")))

	var delivered []string
	job := &mapreduce.Job{
		Source: source,
		DBNum:  1,
		Map: func(ctx context.Context, key, value []byte, emit mapreduce.EmitFunc) error {
			return emit(value, nil)
		},
		Reduce: func(ctx context.Context, key []byte, values *mapreduce.ValueIterator) (bool, error) {
			delivered = append(delivered, string(key))
			return false, nil
		},
	}

	err := job.Run(ctx)
	assert.Error(t, err)
	assert.Len(t, delivered, 1)
}

func TestParallelMapAndReduce(t *testing.T) {
	source := btreestore.New()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, source.Set(ctx, []byte(strings.Repeat("k", 1)+string(rune('a'+i%26))), []byte("v")))
	}

	var mu sync.Mutex
	total := 0
	job := &mapreduce.Job{
		Source:     source,
		DBNum:      4,
		Options:    mapreduce.XPARAMAP | mapreduce.XPARARED | mapreduce.XPARAFLS,
		MapThreads: 4,
		RedThreads: 4,
		CacheLimit: 4,
		Map: func(ctx context.Context, key, value []byte, emit mapreduce.EmitFunc) error {
			return emit(key, value)
		},
		Reduce: func(ctx context.Context, key []byte, values *mapreduce.ValueIterator) (bool, error) {
			mu.Lock()
			total += len(values.All())
			mu.Unlock()
			return true, nil
		},
	}

	require.NoError(t, job.Run(ctx))
	assert.True(t, total > 0)
}
