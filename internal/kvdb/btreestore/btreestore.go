// Package btreestore implements kvdb.Backend over an in-memory
// google/btree. It is the backend MapReduce uses for in-memory temp
// stores (the empty tmp-dir case) and is cheap enough to also serve as
// the source database in tests and small deployments.
package btreestore

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/kvdb"
)

const defaultDegree = 32

type record struct {
	key, value []byte
}

func (r *record) Less(than btree.Item) bool {
	return bytes.Compare(r.key, than.(*record).key) < 0
}

// Store is a kvdb.Backend backed by an in-memory B-tree. All operations
// hold a single RWMutex; there is no per-key striping because the B-tree
// itself is not safe for concurrent mutation.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func New() *Store {
	return &Store{tree: btree.New(defaultDegree)}
}

func (s *Store) Comparator() kvdb.Comparator { return kvdb.LexicalComparator }

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item := s.tree.Get(&record{key: key})
	if item == nil {
		return nil, false, nil
	}
	return cloneBytes(item.(*record).value), true, nil
}

func (s *Store) Set(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(&record{key: cloneBytes(key), value: cloneBytes(value)})
	return nil
}

func (s *Store) Add(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree.Get(&record{key: key}) != nil {
		return kverrors.ErrDuplicate
	}
	s.tree.ReplaceOrInsert(&record{key: cloneBytes(key), value: cloneBytes(value)})
	return nil
}

// CompareAndSwap implements the single-key compare-and-swap contract.
// oldValue == nil means "expect key absent"; newValue == nil means "remove
// the key" rather than replace it.
func (s *Store) CompareAndSwap(_ context.Context, key, oldValue, newValue []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.tree.Get(&record{key: key})
	if oldValue == nil {
		if item != nil {
			return false, nil
		}
	} else if item == nil || !bytes.Equal(item.(*record).value, oldValue) {
		return false, nil
	}
	if newValue == nil {
		s.tree.Delete(&record{key: key})
	} else {
		s.tree.ReplaceOrInsert(&record{key: cloneBytes(key), value: cloneBytes(newValue)})
	}
	return true, nil
}

func (s *Store) Remove(_ context.Context, key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.tree.Delete(&record{key: key})
	return item != nil, nil
}

func (s *Store) Accept(ctx context.Context, key []byte, fn kvdb.VisitFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.tree.Get(&record{key: key})
	var value []byte
	if item != nil {
		value = item.(*record).value
	}
	res, err := fn(key, value)
	if err != nil {
		return err
	}
	switch res.Kind {
	case kvdb.VisitRemove:
		if item != nil {
			s.tree.Delete(&record{key: key})
		}
	case kvdb.VisitReplace:
		s.tree.ReplaceOrInsert(&record{key: cloneBytes(key), value: cloneBytes(res.ReplaceWith)})
	}
	return nil
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.tree.Len()), nil
}

func (s *Store) Iterate(ctx context.Context, fn kvdb.VisitFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var outerErr error
	s.tree.Ascend(func(i btree.Item) bool {
		if ctx.Err() != nil {
			outerErr = ctx.Err()
			return false
		}
		r := i.(*record)
		res, err := fn(r.key, r.value)
		if err != nil {
			outerErr = err
			return false
		}
		switch res.Kind {
		case kvdb.VisitRemove:
			defer s.tree.Delete(&record{key: r.key})
		case kvdb.VisitReplace:
			defer s.tree.ReplaceOrInsert(&record{key: r.key, value: cloneBytes(res.ReplaceWith)})
		}
		return true
	})
	return outerErr
}

// ScanParallel partitions the current key set into `threads` contiguous
// ranges (taken under one read pass) and visits each range concurrently.
// Mutating visitors are not supported in parallel mode: as with any
// XPARAMAP-style mapper, callers must not rely on observing their own writes.
func (s *Store) ScanParallel(ctx context.Context, threads int, fn kvdb.VisitFunc) error {
	if threads < 1 {
		threads = 1
	}
	s.mu.RLock()
	keys := make([][]byte, 0, s.tree.Len())
	vals := make([][]byte, 0, s.tree.Len())
	s.tree.Ascend(func(i btree.Item) bool {
		r := i.(*record)
		keys = append(keys, r.key)
		vals = append(vals, r.value)
		return true
	})
	s.mu.RUnlock()

	n := len(keys)
	if n == 0 {
		return nil
	}
	chunk := (n + threads - 1) / threads
	var wg sync.WaitGroup
	errCh := make(chan error, threads)
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				if _, err := fn(keys[i], vals[i]); err != nil {
					errCh <- err
					return
				}
			}
		}(start, end)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Cursor() kvdb.Cursor {
	return &cursor{store: s}
}

func (s *Store) Close() error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
