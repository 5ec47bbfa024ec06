package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(3)
	ctx := context.Background()

	var running, peak atomic.Int64
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Go(ctx, func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	pool.Wait()

	require.LessOrEqual(t, peak.Load(), int64(3))
	require.Equal(t, int64(0), running.Load())
}

func TestPool_DoReturnsError(t *testing.T) {
	pool := NewPool(1)
	boom := errors.New("boom")

	err := pool.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestPool_CancelledWhileFull(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	require.NoError(t, pool.Go(context.Background(), func(context.Context) { <-release }))

	require.False(t, pool.TryGo(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := pool.Do(ctx, func(context.Context) error { ran.Store(true); return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ran.Load())

	close(release)
	pool.Wait()
	require.True(t, pool.TryGo(context.Background(), func(context.Context) {}))
	pool.Wait()
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool(1)
	require.NoError(t, pool.Go(context.Background(), func(context.Context) { panic("handler bug") }))
	pool.Wait()

	// The slot is released after the panic
	require.NoError(t, pool.Do(context.Background(), func(context.Context) error { return nil }))
}
