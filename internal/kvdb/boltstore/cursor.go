package boltstore

import (
	"bytes"
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/entropycollective/quiverdb/internal/kverrors"
)

// cursor, like btreestore's, re-seeks from the current key on every call
// rather than holding a long-lived bbolt transaction, so it never pins a
// page version open across the lifetime of a remote client's cursor.
type cursor struct {
	store    *Store
	key, val []byte
	have     bool
}

func (c *cursor) Jump(_ context.Context, key []byte) error {
	c.have = false
	return c.store.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketName).Cursor()
		var k, v []byte
		if key == nil {
			k, v = cur.First()
		} else {
			k, v = cur.Seek(key)
		}
		c.setFrom(k, v)
		return nil
	})
}

func (c *cursor) JumpBack(_ context.Context, key []byte) error {
	c.have = false
	return c.store.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketName).Cursor()
		if key == nil {
			k, v := cur.Last()
			c.setFrom(k, v)
			return nil
		}
		k, v := cur.Seek(key)
		switch {
		case k != nil && bytes.Equal(k, key):
			c.setFrom(k, v)
		case k == nil:
			k, v = cur.Last()
			c.setFrom(k, v)
		default:
			k, v = cur.Prev()
			c.setFrom(k, v)
		}
		return nil
	})
}

func (c *cursor) Step(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	prevKey := c.key
	c.have = false
	err := c.store.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketName).Cursor()
		k, v := cur.Seek(prevKey)
		if k != nil && bytes.Equal(k, prevKey) {
			k, v = cur.Next()
		}
		c.setFrom(k, v)
		return nil
	})
	if err != nil {
		return err
	}
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	return nil
}

func (c *cursor) StepBack(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	prevKey := c.key
	c.have = false
	err := c.store.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketName).Cursor()
		k, v := cur.Seek(prevKey)
		if k == nil {
			k, v = cur.Last()
		} else {
			k, v = cur.Prev()
		}
		c.setFrom(k, v)
		return nil
	})
	if err != nil {
		return err
	}
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	return nil
}

func (c *cursor) Get(_ context.Context) ([]byte, []byte, bool, error) {
	if !c.have {
		return nil, nil, false, nil
	}
	return append([]byte(nil), c.key...), append([]byte(nil), c.val...), true, nil
}

func (c *cursor) SetValue(_ context.Context, value []byte) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	err := c.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(c.key, value)
	})
	if err != nil {
		return err
	}
	c.val = append([]byte(nil), value...)
	return nil
}

func (c *cursor) Remove(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	err := c.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(c.key)
	})
	if err != nil {
		return err
	}
	c.have = false
	return nil
}

func (c *cursor) Close() error { return nil }

func (c *cursor) setFrom(k, v []byte) {
	if k == nil {
		c.have = false
		return
	}
	c.key = append([]byte(nil), k...)
	c.val = append([]byte(nil), v...)
	c.have = true
}
