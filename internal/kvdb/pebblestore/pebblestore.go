// Package pebblestore implements kvdb.Backend over
// github.com/cockroachdb/pebble, an LSM-tree ordered store. It gives the
// kvdb.Backend capability interface a third, structurally different
// implementation: no bucket/tx model like bbolt, no in-memory tree like
// btreestore, and background compaction instead of manual vacuum.
//
// Pebble itself exposes gets/sets/iterators but no general read-modify-write
// transaction, so Accept/Add/CompareAndSwap serialize through storeMu to
// stay atomic; this is purely a backend-internal concern and invisible
// through the kvdb.Backend interface.
package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/kvdb"
)

type Store struct {
	db      *pebble.DB
	storeMu sync.Mutex
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, kverrors.Wrap(kverrors.CodeSystem, "open pebble store", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Comparator() kvdb.Comparator { return kvdb.LexicalComparator }

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kverrors.Wrap(kverrors.CodeSystem, "get", err)
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

func (s *Store) Add(_ context.Context, key, value []byte) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if _, closer, err := s.db.Get(key); err == nil {
		closer.Close()
		return kverrors.ErrDuplicate
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return kverrors.Wrap(kverrors.CodeSystem, "add", err)
	}
	return s.db.Set(key, value, pebble.Sync)
}

func (s *Store) CompareAndSwap(_ context.Context, key, oldValue, newValue []byte) (bool, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	cur, closer, err := s.db.Get(key)
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return false, kverrors.Wrap(kverrors.CodeSystem, "cas get", err)
	}
	exists := err == nil
	if exists {
		defer closer.Close()
	}
	if oldValue == nil {
		if exists {
			return false, nil
		}
	} else if !exists || !bytes.Equal(cur, oldValue) {
		return false, nil
	}
	if newValue == nil {
		return true, s.db.Delete(key, pebble.Sync)
	}
	return true, s.db.Set(key, newValue, pebble.Sync)
}

func (s *Store) Remove(_ context.Context, key []byte) (bool, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	_, closer, err := s.db.Get(key)
	existed := err == nil
	if existed {
		closer.Close()
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return false, kverrors.Wrap(kverrors.CodeSystem, "remove", err)
	}
	return existed, s.db.Delete(key, pebble.Sync)
}

func (s *Store) Accept(_ context.Context, key []byte, fn kvdb.VisitFunc) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	v, closer, err := s.db.Get(key)
	var value []byte
	if err == nil {
		value = append([]byte(nil), v...)
		closer.Close()
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return kverrors.Wrap(kverrors.CodeSystem, "accept get", err)
	}
	res, err := fn(key, value)
	if err != nil {
		return err
	}
	switch res.Kind {
	case kvdb.VisitRemove:
		return s.db.Delete(key, pebble.Sync)
	case kvdb.VisitReplace:
		return s.db.Set(key, res.ReplaceWith, pebble.Sync)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.iterate(ctx, nil, func(_, _ []byte) (kvdb.VisitResult, error) {
		n++
		return kvdb.ResultNOP, nil
	})
	return n, err
}

func (s *Store) Iterate(ctx context.Context, fn kvdb.VisitFunc) error {
	return s.iterate(ctx, nil, fn)
}

// IterateReadOnly is identical to Iterate for pebble: pebble iterators are
// already lock-free snapshot reads, so there is no separate exclusive-lock
// code path to avoid.
func (s *Store) IterateReadOnly(ctx context.Context, fn kvdb.VisitFunc) error {
	return s.iterate(ctx, nil, fn)
}

func (s *Store) iterate(ctx context.Context, opts *pebble.IterOptions, fn kvdb.VisitFunc) error {
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return kverrors.Wrap(kverrors.CodeSystem, "new iterator", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		key := append([]byte(nil), iter.Key()...)
		val := append([]byte(nil), iter.Value()...)
		res, err := fn(key, val)
		if err != nil {
			return err
		}
		switch res.Kind {
		case kvdb.VisitRemove:
			if err := s.db.Delete(key, pebble.NoSync); err != nil {
				return err
			}
		case kvdb.VisitReplace:
			if err := s.db.Set(key, res.ReplaceWith, pebble.NoSync); err != nil {
				return err
			}
		}
	}
	return iter.Error()
}

func (s *Store) ScanParallel(ctx context.Context, threads int, fn kvdb.VisitFunc) error {
	if threads < 1 {
		threads = 1
	}
	var keys, vals [][]byte
	if err := s.iterate(ctx, nil, func(k, v []byte) (kvdb.VisitResult, error) {
		keys = append(keys, k)
		vals = append(vals, v)
		return kvdb.ResultNOP, nil
	}); err != nil {
		return err
	}
	n := len(keys)
	if n == 0 {
		return nil
	}
	chunk := (n + threads - 1) / threads
	errCh := make(chan error, threads)
	outstanding := 0
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		outstanding++
		go func(start, end int) {
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
			errCh <- nil
		}(start, end)
	}
	var firstErr error
	for i := 0; i < outstanding; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) Cursor() kvdb.Cursor { return &cursor{store: s} }

func (s *Store) Close() error { return s.db.Close() }

// Vacuum triggers pebble's manual compaction across the full key range.
func (s *Store) Vacuum(_ context.Context) error {
	return s.db.Compact(nil, []byte{0xff, 0xff, 0xff, 0xff}, true)
}
