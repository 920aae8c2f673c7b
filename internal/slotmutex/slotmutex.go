// Package slotmutex implements a fixed-size striped mutex, used by the
// MapReduce emitter cache to serialize concurrent emits without a single
// global lock. Slot selection hashes the key with blake2b-256 rather than a
// hand-rolled hash, for a flatter distribution across slots at the same
// code cost.
package slotmutex

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Striped is an array of N mutexes indexed by hash(key) mod N, plus a
// "lock all" mode that acquires every slot in a fixed, deadlock-free order
// (ascending index).
type Striped struct {
	locks []sync.Mutex
}

// New creates a Striped mutex with the given number of slots. slots must be
// > 0.
func New(slots int) *Striped {
	if slots <= 0 {
		slots = 1
	}
	return &Striped{locks: make([]sync.Mutex, slots)}
}

// Slot returns the slot index a key hashes to.
func (s *Striped) Slot(key []byte) int {
	sum := blake2b.Sum256(key)
	var h uint64
	for _, b := range sum[:8] {
		h = h<<8 | uint64(b)
	}
	return int(h % uint64(len(s.locks)))
}

// Lock locks the slot for key.
func (s *Striped) Lock(key []byte) { s.locks[s.Slot(key)].Lock() }

// Unlock unlocks the slot for key.
func (s *Striped) Unlock(key []byte) { s.locks[s.Slot(key)].Unlock() }

// LockSlot/UnlockSlot operate directly on a slot index, for callers (like
// the MapReduce emitter cache) that compute the slot once and reuse it.
func (s *Striped) LockSlot(i int)   { s.locks[i%len(s.locks)].Lock() }
func (s *Striped) UnlockSlot(i int) { s.locks[i%len(s.locks)].Unlock() }

// LockAll acquires every slot in ascending order. Paired with UnlockAll,
// this gives the emitter cache a way to flush under full mutual exclusion
// once its size crosses the configured limit.
func (s *Striped) LockAll() {
	for i := range s.locks {
		s.locks[i].Lock()
	}
}

// UnlockAll releases every slot in descending order, the reverse of the
// acquisition order in LockAll.
func (s *Striped) UnlockAll() {
	for i := len(s.locks) - 1; i >= 0; i-- {
		s.locks[i].Unlock()
	}
}

// Len reports the number of slots.
func (s *Striped) Len() int { return len(s.locks) }
