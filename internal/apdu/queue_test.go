package apdu_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/apdu"
)

func TestQueue_RunsJobsOneAtATime(t *testing.T) {
	t.Parallel()
	q := apdu.NewQueue(16)
	defer q.Close()

	var running, maxRunning atomic.Int32
	futures := make([]*apdu.Future[int], 0, 10)
	for i := range 10 {
		futures = append(futures, apdu.Submit(context.Background(), q, func(context.Context) (int, error) {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			return i, nil
		}))
	}

	for i, f := range futures {
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, 0, q.Depth())
}

func TestQueue_Full(t *testing.T) {
	t.Parallel()
	q := apdu.NewQueue(1)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	first := apdu.Submit(context.Background(), q, func(context.Context) (bool, error) {
		close(started)
		<-release
		return true, nil
	})
	<-started

	second := apdu.Submit(context.Background(), q, func(context.Context) (bool, error) { return true, nil })
	third := apdu.Submit(context.Background(), q, func(context.Context) (bool, error) { return true, nil })

	_, err := third.Await(context.Background())
	require.ErrorIs(t, err, apdu.ErrQueueFull)

	close(release)
	ok, err := first.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = second.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueue_CancelledBeforeRun(t *testing.T) {
	t.Parallel()
	q := apdu.NewQueue(4)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	f := apdu.Submit(ctx, q, func(context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	_, err := f.Await(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestQueue_AwaitTimeout(t *testing.T) {
	t.Parallel()
	q := apdu.NewQueue(1)
	defer q.Close()

	release := make(chan struct{})
	f := apdu.Submit(context.Background(), q, func(context.Context) (int, error) {
		<-release
		return 7, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestQueue_Closed(t *testing.T) {
	t.Parallel()
	q := apdu.NewQueue(1)
	q.Close()
	q.Close()

	_, err := apdu.Submit(context.Background(), q, func(context.Context) (int, error) { return 1, nil }).
		Await(context.Background())
	require.ErrorIs(t, err, apdu.ErrQueueClosed)
}
