package btreestore

import (
	"bytes"
	"context"

	"github.com/google/btree"

	"github.com/entropycollective/quiverdb/internal/kverrors"
)

// cursor walks the B-tree by re-querying it from the current key on every
// step. This trades a little CPU for not needing to invalidate saved tree
// positions across concurrent mutations, matching the "no observable
// ordering guarantee across mutation" looseness allowed for cursors
// racing with writers.
type cursor struct {
	store    *Store
	key, val []byte
	have     bool
}

func (c *cursor) Jump(_ context.Context, key []byte) error {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	c.have = false
	pivot := &record{key: key}
	if key == nil {
		c.store.tree.Ascend(func(i btree.Item) bool {
			c.setFrom(i.(*record))
			return false
		})
		return nil
	}
	c.store.tree.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
		c.setFrom(i.(*record))
		return false
	})
	return nil
}

func (c *cursor) JumpBack(_ context.Context, key []byte) error {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	c.have = false
	if key == nil {
		c.store.tree.Descend(func(i btree.Item) bool {
			c.setFrom(i.(*record))
			return false
		})
		return nil
	}
	pivot := &record{key: key}
	c.store.tree.DescendLessOrEqual(pivot, func(i btree.Item) bool {
		c.setFrom(i.(*record))
		return false
	})
	return nil
}

func (c *cursor) Step(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	prevKey := c.key
	found := false
	c.have = false
	c.store.tree.AscendGreaterOrEqual(&record{key: prevKey}, func(i btree.Item) bool {
		r := i.(*record)
		if bytes.Equal(r.key, prevKey) {
			return true // skip the current record itself
		}
		c.setFrom(r)
		found = true
		return false
	})
	if !found {
		return kverrors.ErrCursorPastEnd
	}
	return nil
}

func (c *cursor) StepBack(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	prevKey := c.key
	found := false
	c.have = false
	c.store.tree.DescendLessOrEqual(&record{key: prevKey}, func(i btree.Item) bool {
		r := i.(*record)
		if bytes.Equal(r.key, prevKey) {
			return true
		}
		c.setFrom(r)
		found = true
		return false
	})
	if !found {
		return kverrors.ErrCursorPastEnd
	}
	return nil
}

func (c *cursor) Get(_ context.Context) ([]byte, []byte, bool, error) {
	if !c.have {
		return nil, nil, false, nil
	}
	return cloneBytes(c.key), cloneBytes(c.val), true, nil
}

func (c *cursor) SetValue(_ context.Context, value []byte) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.tree.ReplaceOrInsert(&record{key: cloneBytes(c.key), value: cloneBytes(value)})
	c.val = cloneBytes(value)
	return nil
}

func (c *cursor) Remove(_ context.Context) error {
	if !c.have {
		return kverrors.ErrCursorPastEnd
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.tree.Delete(&record{key: c.key})
	c.have = false
	return nil
}

func (c *cursor) Close() error { return nil }

func (c *cursor) setFrom(r *record) {
	c.key = cloneBytes(r.key)
	c.val = cloneBytes(r.value)
	c.have = true
}
