// Package boltstore implements kvdb.Backend over go.etcd.io/bbolt: an
// ordered, single-file B+tree store. It backs MapReduce's on-disk temp
// stores and can also serve as an on-disk source database.
package boltstore

import (
	"bytes"
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/kvdb"
)

var bucketName = []byte("quiverdb")

// Store is a kvdb.Backend backed by a single bbolt file with one bucket.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, kverrors.Wrap(kverrors.CodeSystem, "open bolt store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, kverrors.Wrap(kverrors.CodeSystem, "create bucket", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Comparator() kvdb.Comparator { return kvdb.LexicalComparator }

func (s *Store) Path() string { return s.db.Path() }

func (s *Store) Get(_ context.Context, key []byte) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

func (s *Store) Set(_ context.Context, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (s *Store) Add(_ context.Context, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(key) != nil {
			return kverrors.ErrDuplicate
		}
		return b.Put(key, value)
	})
}

func (s *Store) CompareAndSwap(_ context.Context, key, oldValue, newValue []byte) (ok bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		cur := b.Get(key)
		if oldValue == nil {
			if cur != nil {
				return nil
			}
		} else if cur == nil || !bytes.Equal(cur, oldValue) {
			return nil
		}
		ok = true
		if newValue == nil {
			return b.Delete(key)
		}
		return b.Put(key, newValue)
	})
	return ok, err
}

func (s *Store) Remove(_ context.Context, key []byte) (existed bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(key) != nil {
			existed = true
		}
		return b.Delete(key)
	})
	return existed, err
}

func (s *Store) Accept(_ context.Context, key []byte, fn kvdb.VisitFunc) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get(key)
		res, err := fn(key, v)
		if err != nil {
			return err
		}
		switch res.Kind {
		case kvdb.VisitRemove:
			return b.Delete(key)
		case kvdb.VisitReplace:
			return b.Put(key, res.ReplaceWith)
		}
		return nil
	})
}

func (s *Store) Count(_ context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		n = int64(tx.Bucket(bucketName).Stats().KeyN)
		return nil
	})
	return n, err
}

func (s *Store) Iterate(ctx context.Context, fn kvdb.VisitFunc) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res, err := fn(append([]byte(nil), k...), append([]byte(nil), v...))
			if err != nil {
				return err
			}
			switch res.Kind {
			case kvdb.VisitRemove:
				if err := c.Delete(); err != nil {
					return err
				}
			case kvdb.VisitReplace:
				if err := b.Put(k, res.ReplaceWith); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// IterateReadOnly walks the bucket inside a read-only transaction, so it
// never blocks concurrent writers the way Iterate's write transaction does.
// VisitResult mutations are not applied in this mode.
func (s *Store) IterateReadOnly(ctx context.Context, fn kvdb.VisitFunc) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := fn(append([]byte(nil), k...), append([]byte(nil), v...)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanParallel takes a single read-only snapshot of keys/values and fans the
// visit out across `threads` goroutines, same tradeoff as btreestore: no
// ordering guarantee between visited keys, and mutation via the returned
// VisitResult is not supported in this mode.
func (s *Store) ScanParallel(ctx context.Context, threads int, fn kvdb.VisitFunc) error {
	if threads < 1 {
		threads = 1
	}
	var keys, vals [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.ForEach(func(k, v []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			vals = append(vals, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
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

// Vacuum copies the live pages into a compacted file at
// <path>.vacuum.tmp with bolt.Compact. The open store keeps using its
// original file; the compacted copy is not swapped in.
func (s *Store) Vacuum(_ context.Context) error {
	tmp := s.db.Path() + ".vacuum.tmp"
	dst, err := bolt.Open(tmp, 0o600, nil)
	if err != nil {
		return kverrors.Wrap(kverrors.CodeSystem, "open vacuum target", err)
	}
	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		return kverrors.Wrap(kverrors.CodeSystem, "compact", err)
	}
	return dst.Close()
}
