// Package replication models the update-log boundary the core talks to:
// an opaque byte-message log the core neither interprets nor owns,
// reached only through the LogSource capability and the binary
// replication-stream framing in internal/binaryproto.
package replication

import "sync"

// LogEntry is one opaque update-log record, timestamped by the source
// that appended it.
type LogEntry struct {
	TS  uint64
	Msg []byte
}

// LogSource is the boundary interface to an external update log. The
// core only ever appends opaque messages and lists/removes by
// timestamp; it never interprets Msg.
type LogSource interface {
	Append(ts uint64, msg []byte) error
	List(from uint64, limit int) ([]LogEntry, error)
	Remove(before uint64) (removed int, err error)
}

// MemoryLogSource is an in-memory LogSource, bounded to maxEntries
// (oldest entries drop first), suitable for a single-node deployment
// or for tests standing in for a real update-log shipping service.
type MemoryLogSource struct {
	mu         sync.Mutex
	entries    []LogEntry
	maxEntries int
}

// NewMemoryLogSource creates a bounded in-memory log. maxEntries <= 0
// means unbounded.
func NewMemoryLogSource(maxEntries int) *MemoryLogSource {
	return &MemoryLogSource{maxEntries: maxEntries}
}

func (m *MemoryLogSource) Append(ts uint64, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, LogEntry{TS: ts, Msg: append([]byte{}, msg...)})
	if m.maxEntries > 0 && len(m.entries) > m.maxEntries {
		m.entries = m.entries[len(m.entries)-m.maxEntries:]
	}
	return nil
}

func (m *MemoryLogSource) List(from uint64, limit int) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, e := range m.entries {
		if e.TS < from {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryLogSource) Remove(before uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	removed := 0
	for _, e := range m.entries {
		if e.TS < before {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}
