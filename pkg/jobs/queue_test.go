package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan Outcome, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{Workers: 2, OnDone: func(o Outcome) { done <- o }})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: "job", Type: "email"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case o := <-done:
			assert.NoError(t, o.Err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for job")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	done := make(chan Outcome, 1)
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("smtp unavailable")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond, OnDone: func(o Outcome) { done <- o }})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "j1"}))
	select {
	case o := <-done:
		assert.Error(t, o.Err)
		assert.Equal(t, 3, o.Job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for final failure")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueRecoversPanics(t *testing.T) {
	done := make(chan Outcome, 1)
	q := NewQueue("panic", func(ctx context.Context, job Job) error {
		panic("bad payload")
	}, QueueConfig{MaxRetries: 0, OnDone: func(o Outcome) { done <- o }})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "p"}))
	select {
	case o := <-done:
		assert.ErrorContains(t, o.Err, "panicked")
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(context.Background(), Job{ID: "x"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestStopWaitsForWorkers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	q := NewQueue("stop", func(ctx context.Context, job Job) error {
		defer wg.Done()
		return nil
	}, QueueConfig{})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "s"}))
	wg.Wait()
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{ID: "late"}), ErrQueueClosed)
}

func TestQueueTryEnqueueNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.TryEnqueue(Job{ID: "running"}))
	<-started
	require.NoError(t, q.TryEnqueue(Job{ID: "buffered"}))

	err := q.TryEnqueue(Job{ID: "overflow"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueTryEnqueueRequiresStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "j1"}), ErrQueueClosed)
}
