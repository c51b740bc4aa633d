package perkey

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

func TestLanes_sequentialPerKey(t *testing.T) {
	l := New[string]()

	var (
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), "acc-1", func(context.Context) error {
				if running.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.False(t, overlap.Load())
	require.Zero(t, l.Len())
}

func TestLanes_parallelAcrossKeys(t *testing.T) {
	l := New[int]()

	// both functions must run at the same time to meet at the barrier
	var barrier sync.WaitGroup
	barrier.Add(2)

	errs := make(chan error, 2)
	for k := range 2 {
		go func() {
			errs <- l.Do(context.Background(), k, func(context.Context) error {
				barrier.Done()
				barrier.Wait()
				return nil
			})
		}()
	}

	for range 2 {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("keys did not run concurrently")
		}
	}
}

func TestLanes_errorPropagation(t *testing.T) {
	l := New[string]()
	boom := errors.New("boom")
	err := l.Do(context.Background(), "k", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Zero(t, l.Len())
}

func TestLanes_waitingCallerCancelled(t *testing.T) {
	l := New[string]()

	started := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), "k", func(context.Context) error {
			close(started)
			<-unblock
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := l.Do(ctx, "k", func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)

	close(unblock)
	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLanes_closed(t *testing.T) {
	l := New[string]()
	l.Close()
	err := l.Do(context.Background(), "k", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}
