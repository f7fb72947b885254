package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPoolRunsAllTasksWithinLimit(t *testing.T) {
	pool := NewPool(context.Background(), "test", 3, arbor.NewLogger())
	pool.Start()

	var running, peak, done int32
	for i := 0; i < 12; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
			return nil
		}))
	}
	pool.Wait()

	assert.Equal(t, int32(12), atomic.LoadInt32(&done))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Empty(t, pool.Errors())
}

func TestPoolCollectsErrors(t *testing.T) {
	pool := NewPool(context.Background(), "errors", 2, arbor.NewLogger())
	pool.Start()

	boom := errors.New("boom")
	for i := 0; i < 4; i++ {
		fail := i%2 == 0
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			if fail {
				return boom
			}
			return nil
		}))
	}
	pool.Wait()

	errs := pool.Errors()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], boom)
}

func TestPoolSubmitFailsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, "cancel", 1, arbor.NewLogger())
	pool.Start()
	cancel()

	// Fill the buffer so Submit can only return through the cancelled context
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		err = pool.Submit(func(ctx context.Context) error { return nil })
	}
	assert.Error(t, err)
	pool.Wait()
}

func TestPoolRecoversFromPanickingTask(t *testing.T) {
	pool := NewPool(context.Background(), "panic", 1, arbor.NewLogger())
	pool.Start()
	require.NoError(t, pool.Submit(func(ctx context.Context) error { panic("bad task") }))

	var ran int32
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	}))
	pool.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	require.Len(t, pool.Errors(), 1)
	assert.Contains(t, pool.Errors()[0].Error(), "bad task")
}
