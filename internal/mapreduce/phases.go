package mapreduce

import (
	"context"
	"sync"
	"time"

	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/kverrors"
)

func (e *engine) runMap(ctx context.Context) error {
	start := time.Now()
	if e.job.Map == nil {
		return nil
	}

	emit := func(key, value []byte) error {
		if e.cache.emit(key, value) {
			if err := e.flushCache(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	var mapErr error
	var mu sync.Mutex
	recordErr := func(err error) {
		mu.Lock()
		if mapErr == nil {
			mapErr = err
		}
		mu.Unlock()
	}

	visit := func(key, value []byte) (kvdb.VisitResult, error) {
		if err := e.job.Map(ctx, key, value, emit); err != nil {
			return kvdb.ResultNOP, err
		}
		return kvdb.ResultNOP, nil
	}

	var count int64
	counted := func(key, value []byte) (kvdb.VisitResult, error) {
		count++
		return visit(key, value)
	}

	var err error
	switch {
	case e.job.Options.has(XPARAMAP):
		err = e.job.Source.ScanParallel(ctx, e.job.mapThreads(), func(key, value []byte) (kvdb.VisitResult, error) {
			r, verr := visit(key, value)
			if verr != nil {
				recordErr(verr)
			}
			return r, verr
		})
	case e.job.Options.has(XNOLOCK):
		if ro, ok := e.job.Source.(kvdb.ReadOnlyIterator); ok {
			err = ro.IterateReadOnly(ctx, counted)
		} else {
			err = e.job.Source.Iterate(ctx, counted)
		}
	default:
		err = e.job.Source.Iterate(ctx, counted)
	}
	if err == nil {
		err = mapErr
	}

	e.logPhase("map", start, int(count), 0)
	if err != nil {
		return kverrors.Wrap(kverrors.CodeInternal, "mapreduce: map phase failed", err)
	}
	return nil
}

// flushCache drains the emitter cache and writes the snapshot into the
// next temp store in round-robin order, merging onto any existing run
// already written there for the same key. With XPARAFLS the write runs
// on a bounded flusher goroutine and the emitting caller only blocks if
// every flusher slot is already busy; waitFlushes joins every
// outstanding flush before the reduce phase begins.
func (e *engine) flushCache(ctx context.Context) error {
	snapshot := e.cache.drain()
	if len(snapshot) == 0 {
		return nil
	}

	if e.flushSem == nil {
		return e.writeSnapshot(ctx, snapshot)
	}

	e.flushSem <- struct{}{}
	e.flushWG.Add(1)
	go func() {
		defer e.flushWG.Done()
		defer func() { <-e.flushSem }()
		if err := e.writeSnapshot(ctx, snapshot); err != nil {
			e.flushMu.Lock()
			if e.flushErr == nil {
				e.flushErr = err
			}
			e.flushMu.Unlock()
		}
	}()
	return nil
}

// waitFlushes blocks until every asynchronous flush dispatched by
// flushCache has completed, returning the first error any of them hit.
func (e *engine) waitFlushes() error {
	e.flushWG.Wait()
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	return e.flushErr
}

func (e *engine) writeSnapshot(ctx context.Context, snapshot map[string][]byte) error {
	start := time.Now()

	e.flushMu.Lock()
	target := e.temps[e.next%len(e.temps)].backend
	e.next++
	e.flushMu.Unlock()

	for key, run := range snapshot {
		k := []byte(key)
		err := target.Accept(ctx, k, func(existingKey, existingValue []byte) (kvdb.VisitResult, error) {
			merged := append(append([]byte{}, existingValue...), run...)
			return kvdb.ResultReplace(merged), nil
		})
		if err != nil {
			return kverrors.Wrap(kverrors.CodeSystem, "mapreduce: flush write failed", err)
		}
	}

	e.logPhase("flush", start, len(snapshot), 0)
	return nil
}
