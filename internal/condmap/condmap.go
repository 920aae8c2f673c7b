// Package condmap implements the named condition-variable map used by the
// RPC layer's WAIT/SIGNAL facility. Entries are
// reference-counted: a condition's lifetime equals the span during which at
// least one waiter holds a reference to it, and the entry is removed from
// the map the instant the last waiter leaves — whether because it was
// woken, it timed out, or the wait was cancelled.
package condmap

import (
	"context"
	"sync"
	"time"
)

// entry implements a condition variable out of channels rather than
// sync.Cond, so that Wait can select over a timeout and a context
// cancellation alongside the wake signal without a helper goroutine per
// waiter.
type entry struct {
	mu          sync.Mutex
	signalCh    chan struct{} // one token per Signal call; first receiver wins
	broadcastCh chan struct{} // closed (and replaced) on every Broadcast
	waiters     int
}

func newEntry() *entry {
	return &entry{
		signalCh:    make(chan struct{}),
		broadcastCh: make(chan struct{}),
	}
}

// Map is a name -> condition-variable registry, safe for concurrent use by
// many RPC workers.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

func (m *Map) acquire(name string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		e = newEntry()
		m.entries[name] = e
	}
	e.waiters++
	return e
}

func (m *Map) release(name string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.waiters--
	if e.waiters <= 0 && m.entries[name] == e {
		delete(m.entries, name)
	}
}

// Wait blocks on the named condition until it is signaled, broadcast,
// ctx is cancelled, or timeout elapses (timeout <= 0 means no timeout: only
// ctx can end the wait). It returns true if woken by a Signal or Broadcast,
// false on timeout or cancellation.
func (m *Map) Wait(ctx context.Context, name string, timeout time.Duration) bool {
	e := m.acquire(name)
	defer m.release(name, e)

	e.mu.Lock()
	broadcastCh := e.broadcastCh
	e.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-e.signalCh:
		return true
	case <-broadcastCh:
		return true
	case <-deadline:
		return false
	case <-ctx.Done():
		return false
	}
}

// Signal wakes exactly one waiter on name, if any are currently waiting.
func (m *Map) Signal(name string) {
	m.mu.Lock()
	e, ok := m.entries[name]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case e.signalCh <- struct{}{}:
	default:
		// No waiter was ready to receive right now; this signal
		// is not queued for a future waiter.
	}
}

// Broadcast wakes every waiter currently on name, if any.
func (m *Map) Broadcast(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return
	}
	e.mu.Lock()
	close(e.broadcastCh)
	e.broadcastCh = make(chan struct{})
	e.mu.Unlock()
}

// Len reports how many distinct condition names currently have waiters.
// Intended for tests and the monitor surface's diagnostics.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
