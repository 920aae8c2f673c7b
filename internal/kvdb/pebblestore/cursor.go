package pebblestore

import (
	"bytes"
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/entropycollective/quiverdb/internal/kverrors"
)

// cursor re-opens a pebble iterator for every call, seeking back to the
// last known key, matching the other backends' "no pinned position across
// calls" design so a long-lived remote-client cursor never blocks pebble's
// internal compaction.
type cursor struct {
	store    *Store
	key, val []byte
	have     bool
}

func (c *cursor) with(fn func(iter *pebble.Iterator)) error {
	iter, err := c.store.db.NewIter(nil)
	if err != nil {
		return kverrors.Wrap(kverrors.CodeSystem, "cursor iterator", err)
	}
	defer iter.Close()
	fn(iter)
	return iter.Error()
}

func (c *cursor) setFrom(iter *pebble.Iterator) {
	if !iter.Valid() {
		c.have = false
		return
	}
	c.key = append([]byte(nil), iter.Key()...)
	c.val = append([]byte(nil), iter.Value()...)
	c.have = true
}

func (c *cursor) Jump(_ context.Context, key []byte) error {
	c.have = false
	return c.with(func(iter *pebble.Iterator) {
		if key == nil {
			iter.First()
		} else {
			iter.SeekGE(key)
		}
		c.setFrom(iter)
	})
}

func (c *cursor) JumpBack(_ context.Context, key []byte) error {
	c.have = false
	return c.with(func(iter *pebble.Iterator) {
		if key == nil {
			iter.Last()
			c.setFrom(iter)
			return
		}
		if iter.SeekGE(key) && bytes.Equal(iter.Key(), key) {
			c.setFrom(iter)
			return
		}
		// SeekGE landed past key (or found nothing): step back one.
		if iter.Valid() {
			iter.Prev()
		} else {
			iter.Last()
		}
		c.setFrom(iter)
	})
}

func (c *cursor) Step(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	prevKey := c.key
	c.have = false
	err := c.with(func(iter *pebble.Iterator) {
		iter.SeekGE(prevKey)
		if iter.Valid() && bytes.Equal(iter.Key(), prevKey) {
			iter.Next()
		}
		c.setFrom(iter)
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
	err := c.with(func(iter *pebble.Iterator) {
		if iter.SeekGE(prevKey) {
			iter.Prev()
		} else {
			iter.Last()
		}
		c.setFrom(iter)
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
	if err := c.store.db.Set(c.key, value, pebble.Sync); err != nil {
		return err
	}
	c.val = append([]byte(nil), value...)
	return nil
}

func (c *cursor) Remove(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	if err := c.store.db.Delete(c.key, pebble.Sync); err != nil {
		return err
	}
	c.have = false
	return nil
}

func (c *cursor) Close() error { return nil }
