package mapreduce

import (
	"bytes"
	"container/heap"
	"context"
	"sync/atomic"
	"time"

	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/taskqueue"
)

// mergeLine tracks one temp-store cursor's current record during the
// k-way reduce merge.
type mergeLine struct {
	cursor kvdb.Cursor
	key    []byte
	value  []byte
}

type mergeHeap []*mergeLine

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return bytes.Compare(h[i].key, h[j].key) < 0
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any) {
	*h = append(*h, x.(*mergeLine))
}
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	line := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return line
}

func (e *engine) runReduce(ctx context.Context) error {
	start := time.Now()
	if e.job.Reduce == nil {
		return nil
	}

	h := &mergeHeap{}
	cursors := make([]kvdb.Cursor, 0, len(e.temps))
	defer func() {
		for _, c := range cursors {
			c.Close()
		}
	}()

	for _, t := range e.temps {
		cur := t.backend.Cursor()
		cursors = append(cursors, cur)
		if err := cur.Jump(ctx, nil); err != nil {
			return kverrors.Wrap(kverrors.CodeSystem, "mapreduce: reduce cursor jump failed", err)
		}
		key, value, ok, err := cur.Get(ctx)
		if err != nil {
			return kverrors.Wrap(kverrors.CodeSystem, "mapreduce: reduce cursor get failed", err)
		}
		if ok {
			heap.Push(h, &mergeLine{cursor: cur, key: key, value: value})
		}
	}

	var q *taskqueue.Queue
	var aborted atomic.Bool
	if e.job.Options.has(XPARARED) {
		q = taskqueue.New(e.job.redThreads(), nil, nil)
		q.Start()
		defer q.Finish()
	}

	var groupKey []byte
	var groupValues []byte
	var reduceCount int

	deliver := func(key, values []byte) error {
		if aborted.Load() {
			return nil
		}
		k := append([]byte{}, key...)
		v := append([]byte{}, values...)
		if q != nil {
			q.AddTask(taskqueue.TaskFunc(func(ctx context.Context, worker int, taskAborted bool) {
				if taskAborted || aborted.Load() {
					return
				}
				ok, err := e.job.Reduce(ctx, k, newValueIterator(v))
				if err != nil || !ok {
					aborted.Store(true)
				}
			}))
			return nil
		}
		ok, err := e.job.Reduce(ctx, k, newValueIterator(v))
		if err != nil {
			return err
		}
		if !ok {
			aborted.Store(true)
		}
		return nil
	}

	for h.Len() > 0 && !aborted.Load() {
		line := heap.Pop(h).(*mergeLine)
		if groupKey == nil || !bytes.Equal(groupKey, line.key) {
			if groupKey != nil {
				reduceCount++
				if err := deliver(groupKey, groupValues); err != nil {
					return kverrors.Wrap(kverrors.CodeInternal, "mapreduce: reduce callback failed", err)
				}
			}
			groupKey = append([]byte{}, line.key...)
			groupValues = append([]byte{}, line.value...)
		} else {
			groupValues = append(groupValues, line.value...)
		}

		if err := line.cursor.Step(ctx); err == nil {
			key, value, ok, gerr := line.cursor.Get(ctx)
			if gerr == nil && ok {
				line.key, line.value = key, value
				heap.Push(h, line)
			}
		}
	}
	if groupKey != nil && !aborted.Load() {
		reduceCount++
		if err := deliver(groupKey, groupValues); err != nil {
			return kverrors.Wrap(kverrors.CodeInternal, "mapreduce: reduce callback failed", err)
		}
	}

	e.logPhase("reduce", start, reduceCount, 0)
	if q != nil {
		q.Finish()
	}
	if aborted.Load() {
		return kverrors.New(kverrors.CodeLogicInconsistent, "mapreduce: reducer aborted the job")
	}
	return nil
}
