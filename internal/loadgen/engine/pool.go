package engine

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

// job is one admitted batch. rng belongs to the worker running the job and must not escape it.
type job func(ctx context.Context, rng *rand.Rand)

// workerPool runs jobs on a fixed number of goroutines. The queue is sized so that a submitter holding
// an admission permit never blocks.
type workerPool struct {
	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorkerPool(workers int, queueSize int) *workerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &workerPool{
		jobs:   make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		rng := newWorkerRand()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				j(p.ctx, rng)
			}
		}()
	}
	return p
}

// Submit queues j without blocking and reports whether it was accepted.
// It must not be called after Shutdown.
func (p *workerPool) Submit(j job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting jobs and waits up to grace for queued and running jobs to finish.
// If they don't, their context is cancelled and Shutdown returns false without waiting further.
func (p *workerPool) Shutdown(grace time.Duration) bool {
	close(p.jobs)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		p.cancel()
		return true
	case <-timer.C:
		p.cancel()
		return false
	}
}

// newWorkerRand returns an unshared random source. Seeds come from crypto/rand so that workers, and
// processes started at the same instant, don't produce the same customers.
func newWorkerRand() *rand.Rand {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}
