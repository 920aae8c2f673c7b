package mapreduce

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/entropycollective/quiverdb/internal/slotmutex"
	"github.com/entropycollective/quiverdb/internal/varint"
)

// rlockSlots is RLOCKSLOT from spec: the emitter cache's slotted mutex
// always has this many slots regardless of the configured cache limit.
const rlockSlots = 256

// emitterCache is the in-memory multimap from emitted key to a
// concatenated, varint-length-prefixed run of values pending flush to a
// temp store. A bloom filter of keys seen so far lets emit append to a
// key the filter reports as seen without checking whether it is new;
// only a key the filter reports as unseen, and that the map does not yet
// hold, counts as a new entry toward the limit.
type emitterCache struct {
	mu    *slotmutex.Striped
	seen  *bloom.BloomFilter
	data  map[string][]byte
	limit int
	count int
}

func newEmitterCache(limit int) *emitterCache {
	if limit <= 0 {
		limit = 8192
	}
	return &emitterCache{
		mu:    slotmutex.New(rlockSlots),
		seen:  bloom.NewWithEstimates(uint(limit*4+1), 0.01),
		data:  make(map[string][]byte),
		limit: limit,
	}
}

// emit appends value (length-prefixed) to key's run. It reports whether
// the cache has crossed its configured limit and should be flushed.
//
// The per-key slot lock only guards the data/seen mutation. count is
// shared across every slot, so it is only ever touched under LockAll —
// here, and in drain — to keep the limit check and the reset it guards
// from racing with a concurrent emit on a different slot.
func (c *emitterCache) emit(key, value []byte) bool {
	slot := c.mu.Slot(key)
	c.mu.LockSlot(slot)
	encoded := varint.Append(make([]byte, 0, varint.Size(uint64(len(value)))+len(value)), uint64(len(value)))
	encoded = append(encoded, value...)

	k := string(key)
	firstForKey := false
	if c.seen.Test(key) {
		c.data[k] = append(c.data[k], encoded...)
	} else {
		c.seen.Add(key)
		if existing, ok := c.data[k]; ok {
			c.data[k] = append(existing, encoded...)
		} else {
			c.data[k] = encoded
			firstForKey = true
		}
	}
	c.mu.UnlockSlot(slot)

	if !firstForKey {
		return false
	}

	c.mu.LockAll()
	c.count++
	crossed := c.count >= c.limit
	c.mu.UnlockAll()
	return crossed
}

// drain acquires every slot, snapshots and clears the cache, and
// returns the snapshot for the caller to flush to a temp store.
func (c *emitterCache) drain() map[string][]byte {
	c.mu.LockAll()
	defer c.mu.UnlockAll()
	if len(c.data) == 0 {
		return nil
	}
	snapshot := c.data
	c.data = make(map[string][]byte)
	c.count = 0
	c.seen.ClearAll()
	return snapshot
}
