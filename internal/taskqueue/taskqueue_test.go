package taskqueue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/taskqueue"
)

func TestDispatchesEveryTaskExactlyOnce(t *testing.T) {
	var started, finished int32
	q := taskqueue.New(4,
		func(worker int) { atomic.AddInt32(&started, 1) },
		func(worker int) { atomic.AddInt32(&finished, 1) },
	)
	q.Start()

	const n = 200
	var count int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		q.AddTask(taskqueue.TaskFunc(func(ctx context.Context, worker int, aborted bool) {
			atomic.AddInt32(&count, 1)
			wg.Done()
		}))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all tasks")
	}

	q.Finish()
	assert.EqualValues(t, n, count)
	assert.EqualValues(t, 4, started)
	assert.EqualValues(t, 4, finished)
}

func TestAbortMarksTasksButStillDispatches(t *testing.T) {
	q := taskqueue.New(1, nil, nil)
	q.Start()
	q.Abort()

	done := make(chan bool, 1)
	q.AddTask(taskqueue.TaskFunc(func(ctx context.Context, worker int, aborted bool) {
		done <- aborted
	}))

	select {
	case aborted := <-done:
		assert.True(t, aborted)
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	q.Finish()
}

func TestFinishDrainsQueuedTasks(t *testing.T) {
	q := taskqueue.New(2, nil, nil)
	q.Start()
	var ran int32
	for i := 0; i < 50; i++ {
		q.AddTask(taskqueue.TaskFunc(func(ctx context.Context, worker int, aborted bool) {
			atomic.AddInt32(&ran, 1)
		}))
	}
	q.Finish()
	require.EqualValues(t, 50, ran)
	assert.Equal(t, 0, q.Count())
}
