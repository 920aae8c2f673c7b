package mapreduce

import "github.com/entropycollective/quiverdb/internal/varint"

// ValueIterator lazily decodes a concatenated, varint-length-prefixed
// run of values without copying the backing buffer. It is single-pass
// and non-restartable, matching the reducer-facing contract.
type ValueIterator struct {
	buf []byte
}

func newValueIterator(buf []byte) *ValueIterator {
	return &ValueIterator{buf: buf}
}

// Next returns the next borrowed value slice, or ok == false at end.
func (it *ValueIterator) Next() (value []byte, ok bool) {
	if len(it.buf) == 0 {
		return nil, false
	}
	size, n := varint.Get(it.buf)
	if n == 0 || n+int(size) > len(it.buf) {
		it.buf = nil
		return nil, false
	}
	value = it.buf[n : n+int(size)]
	it.buf = it.buf[n+int(size):]
	return value, true
}

// All drains the remainder into a slice; convenience for reducers that
// don't need the lazy, single-pass discipline.
func (it *ValueIterator) All() [][]byte {
	var out [][]byte
	for {
		v, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
