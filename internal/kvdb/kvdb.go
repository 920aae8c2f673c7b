// Package kvdb defines the uniform operation/cursor interface through which
// the core consumes a pluggable persistent KV storage engine. The core never
// knows whether the backend behind this interface is a B+tree file, an
// LSM-tree, or an in-memory tree — it only knows the Comparator it was
// opened with and the operations below.
package kvdb

import "context"

// Comparator orders keys. The zero value is not meaningful; use
// LexicalComparator for the default.
type Comparator interface {
	Compare(a, b []byte) int
}

type lexicalComparator struct{}

func (lexicalComparator) Compare(a, b []byte) int {
	switch {
	case len(a) < len(b):
		for i := range a {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
		return -1
	case len(a) > len(b):
		for i := range b {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
		return 1
	default:
		for i := range a {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
}

// LexicalComparator is the default byte-lexical ordering: a cursor or
// merge step inherits it unless the backend advertises a different one.
var LexicalComparator Comparator = lexicalComparator{}

// VisitResult is the tagged outcome of a visitor callback, realizing the
// "visitor with full/empty variants returning {NOP, REMOVE, REPLACE(bytes)}"
// capability a scoped visitor needs.
type VisitResultKind int

const (
	VisitNOP VisitResultKind = iota
	VisitRemove
	VisitReplace
)

type VisitResult struct {
	Kind        VisitResultKind
	ReplaceWith []byte
}

var ResultNOP = VisitResult{Kind: VisitNOP}

func ResultRemove() VisitResult { return VisitResult{Kind: VisitRemove} }

func ResultReplace(value []byte) VisitResult {
	return VisitResult{Kind: VisitReplace, ReplaceWith: value}
}

// VisitFunc visits one existing (key, value) record. Iterate only ever
// walks existing records; the full/empty distinction a single-key
// accept-or-create visit needs is modeled separately by Backend.Accept,
// where a nil value means the key is absent.
type VisitFunc func(key, value []byte) (VisitResult, error)

// Backend is the capability interface the core consumes. Concrete backends
// (kvdb/boltstore, kvdb/btreestore, kvdb/pebblestore) implement it over a
// real storage engine.
type Backend interface {
	Comparator() Comparator

	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)
	Set(ctx context.Context, key, value []byte) error
	Add(ctx context.Context, key, value []byte) error // fails if key exists
	CompareAndSwap(ctx context.Context, key, oldValue, newValue []byte) (ok bool, err error)
	Remove(ctx context.Context, key []byte) (existed bool, err error)

	// Accept runs fn against the current value of key (nil if absent),
	// applying whatever VisitResult fn returns atomically with the read.
	// This is the single-key counterpart of Iterate's scoped-visitor model.
	Accept(ctx context.Context, key []byte, fn VisitFunc) error

	Count(ctx context.Context) (int64, error)

	// Iterate visits every record in comparator order under the backend's
	// own locking discipline.
	Iterate(ctx context.Context, fn VisitFunc) error

	// ScanParallel visits every record using the given number of worker
	// goroutines; no ordering is implied between visits of different keys.
	// Used by MapReduce's XPARAMAP mode.
	ScanParallel(ctx context.Context, threads int, fn VisitFunc) error

	Cursor() Cursor

	Close() error
}

// Cursor iterates the key-space of a Backend. Not safe for concurrent use
// by multiple goroutines without external synchronization, matching
// the "at most one cursor per cursor ID" rule.
type Cursor interface {
	Jump(ctx context.Context, key []byte) error     // jump(nil) == jump to first record
	JumpBack(ctx context.Context, key []byte) error // jump_back(nil) == jump to last record
	Step(ctx context.Context) error
	StepBack(ctx context.Context) error
	Get(ctx context.Context) (key, value []byte, ok bool, err error)
	SetValue(ctx context.Context, value []byte) error
	Remove(ctx context.Context) error
	Close() error
}

// ReadOnlyIterator is an optional capability for backends that can walk
// their keyspace without taking the same exclusive lock Iterate does. It
// backs MapReduce's XNOLOCK option: the mapper may miss or double-count
// records concurrently written by other sessions, an explicit, accepted
// tradeoff for throughput over a point-in-time guarantee.
type ReadOnlyIterator interface {
	IterateReadOnly(ctx context.Context, fn VisitFunc) error
}

// Vacuuper is an optional capability: backends that support online
// compaction implement it. Backends that don't (e.g. btreestore, which has
// no on-disk fragmentation to reclaim) are type-asserted against this and
// the RPC/remote-client vacuum operation reports ENOIMPL when absent,
// matching the "Not implemented" taxonomy entry.
type Vacuuper interface {
	Vacuum(ctx context.Context) error
}
