package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlusherDrainsQueuePeriodically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.join(t, 111)

	f.svc.StartFlusher(10 * time.Millisecond)
	_, err := f.svc.AddBalance(ctx, 111, "credits", dec(12))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _, err := f.store.Memory.Balance(ctx, 111, "credits")
		return err == nil && v.Equal(dec(12))
	}, 2*time.Second, 10*time.Millisecond)

	f.svc.StopFlusher()
	assert.Zero(t, f.svc.PendingSaves())
}

func TestStartFlusherWithZeroIntervalDisablesIt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.join(t, 111)

	f.svc.StartFlusher(10 * time.Millisecond)
	f.svc.StartFlusher(0)
	_, _ = f.svc.AddBalance(ctx, 111, "credits", dec(12))

	time.Sleep(50 * time.Millisecond)
	requireAmount(t, 0, f.store.stored(t, 111, "credits"))
	assert.Equal(t, 1, f.svc.PendingSaves())
}

func TestDrainQueueOnlyTakesEntriesPresentAtStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.join(t, 1, 2)
	_, _ = f.svc.AddBalance(ctx, 1, "credits", dec(1))
	_, _ = f.svc.AddBalance(ctx, 2, "credits", dec(2))

	f.store.setFailUpsert(errors.New("disk full"))
	assert.Zero(t, f.svc.drainQueue(ctx))
	assert.Equal(t, 2, f.svc.PendingSaves(), "failed entities wait for the next cycle")

	f.store.setFailUpsert(nil)
	assert.Equal(t, 2, f.svc.drainQueue(ctx))
	assert.Zero(t, f.svc.PendingSaves())
}

func TestShutdownRunsFinalFlush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.join(t, 1, 2)
	f.svc.StartFlusher(time.Hour)
	_, _ = f.svc.AddBalance(ctx, 1, "credits", dec(7))
	_, _ = f.svc.AddBalance(ctx, 2, "credits", dec(8))

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(shutdownCtx))

	requireAmount(t, 7, f.store.stored(t, 1, "credits"))
	requireAmount(t, 8, f.store.stored(t, 2, "credits"))
}

func TestShutdownIsBounded(t *testing.T) {
	f := newFixture(t, Options{})
	f.join(t, 1)
	_, _ = f.svc.AddBalance(context.Background(), 1, "credits", dec(7))

	// Hold the entity's async lock so the final flush cannot make progress.
	sem := f.svc.locks.Async(1)
	require.NoError(t, sem.Acquire(context.Background(), 1))
	defer sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := f.svc.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestShutdownBoundsWaitForRunningCycle(t *testing.T) {
	f := newFixture(t, Options{})
	ids := []uint64{1, 2, 3, 4, 5}
	f.join(t, ids...)
	for _, id := range ids {
		_, err := f.svc.AddBalance(context.Background(), id, "credits", dec(3))
		require.NoError(t, err)
	}

	started := make(chan struct{})
	var once sync.Once
	f.store.onBalance = func(uint64, string) {
		once.Do(func() { close(started) })
		time.Sleep(300 * time.Millisecond)
	}

	f.svc.StartFlusher(5 * time.Millisecond)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic cycle never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := f.svc.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
