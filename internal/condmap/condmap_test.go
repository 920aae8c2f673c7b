package condmap_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entropycollective/quiverdb/internal/condmap"
)

func TestSignalWakesOneWaiter(t *testing.T) {
	m := condmap.New()
	var wg sync.WaitGroup
	results := make(chan bool, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			results <- m.Wait(context.Background(), "q", time.Second)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	m.Signal("q")
	time.Sleep(50 * time.Millisecond)
	m.Signal("q")
	wg.Wait()
	close(results)
	woke := 0
	for r := range results {
		if r {
			woke++
		}
	}
	assert.Equal(t, 2, woke)
}

func TestBroadcastWakesEveryWaiter(t *testing.T) {
	m := condmap.New()
	const n = 5
	var wg sync.WaitGroup
	ok := make([]bool, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ok[i] = m.Wait(context.Background(), "topic", time.Second)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	m.Broadcast("topic")
	wg.Wait()
	for _, v := range ok {
		assert.True(t, v)
	}
}

func TestWaitTimesOut(t *testing.T) {
	m := condmap.New()
	woke := m.Wait(context.Background(), "never", 50*time.Millisecond)
	assert.False(t, woke)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	m := condmap.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- m.Wait(ctx, "x", time.Minute) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case woke := <-done:
		assert.False(t, woke)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestEntryRemovedWhenLastWaiterLeaves(t *testing.T) {
	m := condmap.New()
	m.Wait(context.Background(), "ephemeral", time.Millisecond)
	assert.Equal(t, 0, m.Len())
}

func TestSignalWithNoWaiterIsNotQueued(t *testing.T) {
	m := condmap.New()
	m.Signal("nobody-home")
	woke := m.Wait(context.Background(), "nobody-home", 80*time.Millisecond)
	assert.False(t, woke, "a signal sent before anyone waited must not be queued")
}
