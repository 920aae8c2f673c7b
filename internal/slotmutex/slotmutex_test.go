package slotmutex_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/slotmutex"
)

func TestSlotIsStableForSameKey(t *testing.T) {
	s := slotmutex.New(16)
	key := []byte("alpha")
	first := s.Slot(key)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Slot(key))
	}
	require.True(t, first >= 0 && first < 16)
}

func TestLockUnlockByKeySerializes(t *testing.T) {
	s := slotmutex.New(4)
	counter := 0
	var wg sync.WaitGroup
	keys := [][]byte{[]byte("a"), []byte("a"), []byte("a"), []byte("a")}
	for _, k := range keys {
		wg.Add(1)
		go func(k []byte) {
			defer wg.Done()
			s.Lock(k)
			defer s.Unlock(k)
			counter++
		}(k)
	}
	wg.Wait()
	assert.Equal(t, 4, counter)
}

func TestLockAllExcludesPerSlotLocking(t *testing.T) {
	s := slotmutex.New(8)
	s.LockAll()
	acquired := make(chan struct{})
	go func() {
		s.LockSlot(3)
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("LockSlot should have blocked while LockAll holds every slot")
	default:
	}
	s.UnlockAll()
	<-acquired
	s.UnlockSlot(3)
}

func TestLenReportsSlotCount(t *testing.T) {
	s := slotmutex.New(32)
	assert.Equal(t, 32, s.Len())
}
