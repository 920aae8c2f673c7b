// Package mapreduce implements the local MapReduce engine over an
// ordered kvdb.Backend source: parallel or single-threaded map, a
// spill-to-temp-store emitter cache, and a k-way merge reduce phase.
package mapreduce

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/kvdb/boltstore"
	"github.com/entropycollective/quiverdb/internal/kvdb/btreestore"
	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/logging"
)

// Option is a bit in the job options bitmask.
type Option int

const (
	XNOLOCK Option = 1 << iota
	XPARAMAP
	XPARARED
	XPARAFLS
	XNOCOMP
)

func (o Option) has(flag Option) bool { return o&flag != 0 }

// Mapper emits zero or more (key, value) pairs for one source record.
// Returning an error aborts the job.
type Mapper func(ctx context.Context, key, value []byte, emit EmitFunc) error

// EmitFunc appends one (key, value) pair to the emitter cache.
type EmitFunc func(key, value []byte) error

// Reducer receives one accumulated group: the key and a lazy iterator
// over every value emitted for it. Values from one temp store arrive in
// emission order; the order between runs from different temp stores is
// not defined. Returning false aborts the remainder of the reduce phase.
type Reducer func(ctx context.Context, key []byte, values *ValueIterator) (bool, error)

// Hook runs at the named phase boundary. A nil Hook is skipped.
type Hook func(ctx context.Context) error

// Job configures one MapReduce run.
type Job struct {
	Source      kvdb.Backend
	TmpDir      string // empty selects in-memory temp stores
	DBNum       int    // number of temp stores; defaults to 4
	MapThreads  int    // XPARAMAP worker count; defaults to 4
	RedThreads  int    // XPARARED worker count; defaults to 4
	FlushThreads int   // XPARAFLS worker count; defaults to min(4, DBNum)
	CacheLimit  int    // emitter cache entry count before a flush; defaults to 8192
	Options     Option

	Preprocess  Hook
	Map         Mapper
	Midprocess  Hook
	Reduce      Reducer
	Postprocess Hook

	Logger *logging.Logger
}

func (j *Job) logger() *logging.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return logging.Global().WithComponent("mapreduce")
}

func (j *Job) dbNum() int {
	if j.DBNum > 0 {
		return j.DBNum
	}
	return 4
}

func (j *Job) mapThreads() int {
	if j.MapThreads > 0 {
		return j.MapThreads
	}
	return 4
}

func (j *Job) redThreads() int {
	if j.RedThreads > 0 {
		return j.RedThreads
	}
	return 4
}

func (j *Job) flushThreads() int {
	n := j.FlushThreads
	if n <= 0 {
		n = 4
	}
	if n > j.dbNum() {
		n = j.dbNum()
	}
	return n
}

func (j *Job) cacheLimit() int {
	if j.CacheLimit > 0 {
		return j.CacheLimit
	}
	return 8192
}

// Run executes the full Prepare -> Preprocess -> Map -> Midprocess ->
// Flush -> Reduce -> Postprocess -> Cleanup pipeline.
func (j *Job) Run(ctx context.Context) error {
	log := j.logger()
	e := &engine{job: j, log: log}

	if err := e.prepare(ctx); err != nil {
		return err
	}
	defer e.cleanup()

	if err := e.phase(ctx, "preprocess", j.Preprocess); err != nil {
		return err
	}
	if err := e.runMap(ctx); err != nil {
		return err
	}
	if err := e.flushCache(ctx); err != nil {
		return err
	}
	if err := e.waitFlushes(); err != nil {
		return kverrors.Wrap(kverrors.CodeSystem, "mapreduce: flush failed", err)
	}
	if err := e.phase(ctx, "midprocess", j.Midprocess); err != nil {
		return err
	}
	if err := e.runReduce(ctx); err != nil {
		return err
	}
	if err := e.phase(ctx, "postprocess", j.Postprocess); err != nil {
		return err
	}
	return nil
}

type engine struct {
	job   *Job
	log   *logging.Logger
	temps []tempStore
	cache *emitterCache

	flushMu  sync.Mutex // guards next and the recorded async flush error
	next     int        // round-robin index for the next flush target
	flushSem chan struct{}
	flushWG  sync.WaitGroup
	flushErr error
}

type tempStore struct {
	backend kvdb.Backend
	path    string // empty for in-memory stores
}

func (e *engine) prepare(ctx context.Context) error {
	start := time.Now()
	n := e.job.dbNum()
	e.temps = make([]tempStore, n)
	for i := 0; i < n; i++ {
		if e.job.TmpDir == "" {
			e.temps[i] = tempStore{backend: btreestore.New()}
			continue
		}
		name := tempStoreName(i)
		path := filepath.Join(e.job.TmpDir, name)
		store, err := boltstore.Open(path)
		if err != nil {
			return kverrors.Wrap(kverrors.CodeSystem, "mapreduce: open temp store", err)
		}
		e.temps[i] = tempStore{backend: store, path: path}
	}
	e.cache = newEmitterCache(e.job.cacheLimit())
	if e.job.Options.has(XPARAFLS) {
		e.flushSem = make(chan struct{}, e.job.flushThreads())
	}
	e.logPhase("prepare", start, n, 0)
	return nil
}

func tempStoreName(seq int) string {
	return fmt.Sprintf("mr-%04x-%04x-%08x-%03d.kct", os.Getpid(), 0, time.Now().Unix(), seq)
}

func (e *engine) cleanup() {
	start := time.Now()
	for _, t := range e.temps {
		t.backend.Close()
		if t.path != "" {
			os.Remove(t.path)
		}
	}
	e.logPhase("cleanup", start, len(e.temps), 0)
}

func (e *engine) phase(ctx context.Context, name string, hook Hook) error {
	if hook == nil {
		return nil
	}
	start := time.Now()
	err := hook(ctx)
	e.logPhase(name, start, 0, 0)
	if err != nil {
		return kverrors.Wrap(kverrors.CodeInternal, "mapreduce: "+name+" hook failed", err)
	}
	return nil
}

func (e *engine) logPhase(name string, start time.Time, count int, bytes int64) {
	e.log.Event(logging.InfoLevel).
		Str("phase", name).
		Dur("elapsed", time.Since(start)).
		Int("count", count).
		Int64("bytes", bytes).
		Msg("mapreduce phase boundary")
}
