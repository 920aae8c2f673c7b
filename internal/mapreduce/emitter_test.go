package mapreduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterCacheAccumulatesValuesForSameKey(t *testing.T) {
	c := newEmitterCache(100)
	c.emit([]byte("k"), []byte("one"))
	c.emit([]byte("k"), []byte("two"))
	c.emit([]byte("other"), []byte("x"))

	snapshot := c.drain()
	it := newValueIterator(snapshot["k"])
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, it.All())
}

func TestEmitterCacheReportsLimitCrossed(t *testing.T) {
	c := newEmitterCache(2)
	assert.False(t, c.emit([]byte("a"), nil))
	assert.True(t, c.emit([]byte("b"), nil))
}

func TestDrainResetsCache(t *testing.T) {
	c := newEmitterCache(10)
	c.emit([]byte("k"), []byte("v"))
	first := c.drain()
	assert.Len(t, first, 1)
	second := c.drain()
	assert.Nil(t, second)
}
