package engine

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestAdmissionGate(t *testing.T) {
	g := newAdmissionGate(2)
	assert.Equal(t, 2, g.Capacity())
	assert.True(t, g.TryAcquire())
	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())

	g.Release()
	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())
}

func TestTickPeriod(t *testing.T) {
	tests := map[int]time.Duration{
		1:     time.Second,
		3:     333 * time.Millisecond,
		1000:  time.Millisecond,
		50000: time.Millisecond,
	}
	for rate, want := range tests {
		assert.Equal(t, want, tickPeriod(rate), "rate %d", rate)
	}
}

func TestResolveWorkers(t *testing.T) {
	assert.Equal(t, 7, ResolveWorkers(7))
	assert.GreaterOrEqual(t, ResolveWorkers(0), 2)
}

func TestWorkerPool_RunsJobsWithOwnRand(t *testing.T) {
	p := newWorkerPool(3, 10)
	var ran atomic.Int64
	rngs := make(chan *rand.Rand, 10)
	for i := 0; i < 10; i++ {
		require.True(t, p.Submit(func(ctx context.Context, rng *rand.Rand) {
			ran.Add(1)
			rngs <- rng
		}))
	}
	assert.True(t, p.Shutdown(time.Second))
	assert.Equal(t, int64(10), ran.Load())

	close(rngs)
	distinct := map[*rand.Rand]bool{}
	for rng := range rngs {
		distinct[rng] = true
	}
	assert.LessOrEqual(t, len(distinct), 3)
}

func TestWorkerPool_SubmitNeverBlocks(t *testing.T) {
	p := newWorkerPool(1, 1)
	block := make(chan struct{})
	require.True(t, p.Submit(func(context.Context, *rand.Rand) { <-block }))
	// Wait for the worker to take the first job off the queue
	assert.Eventually(t, func() bool { return len(p.jobs) == 0 }, time.Second, time.Millisecond)
	require.True(t, p.Submit(func(context.Context, *rand.Rand) {}))
	assert.False(t, p.Submit(func(context.Context, *rand.Rand) {}))
	close(block)
	assert.True(t, p.Shutdown(time.Second))
}

func TestWorkerPool_ShutdownCancelsAfterGrace(t *testing.T) {
	p := newWorkerPool(1, 1)
	cancelled := make(chan struct{})
	require.True(t, p.Submit(func(ctx context.Context, _ *rand.Rand) {
		<-ctx.Done()
		close(cancelled)
	}))
	assert.False(t, p.Shutdown(20*time.Millisecond))
	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("job context was not cancelled")
	}
}

func TestScheduler(t *testing.T) {
	fakeClock := clocktesting.NewFakeClock(time.Now())
	var ticks atomic.Int64
	s := newScheduler(fakeClock, time.Second, func() bool {
		return ticks.Add(1) < 3
	})
	go s.Run()

	// The first tick is immediate
	assert.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, time.Millisecond)
	fakeClock.Step(time.Second)
	assert.Eventually(t, func() bool { return ticks.Load() == 2 }, time.Second, time.Millisecond)
	fakeClock.Step(time.Second)
	assert.Eventually(t, func() bool { return ticks.Load() == 3 }, time.Second, time.Millisecond)

	// onTick returned false, so the scheduler exited by itself
	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("scheduler still running")
	}
	fakeClock.Step(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int64(3), ticks.Load())
}

func TestScheduler_Stop(t *testing.T) {
	fakeClock := clocktesting.NewFakeClock(time.Now())
	var ticks atomic.Int64
	s := newScheduler(fakeClock, time.Second, func() bool {
		ticks.Add(1)
		return true
	})
	go s.Run()
	assert.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, time.Millisecond)

	s.Stop()
	fakeClock.Step(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int64(1), ticks.Load())
}
