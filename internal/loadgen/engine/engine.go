// Package engine drives a load run: a scheduler admits batches at a fixed rate, a worker pool generates
// and writes them, and counters track progress.
//
// A run goes Idle -> Running -> Stopping -> Idle. Start and Stop are serialized by one mutex; Status never
// takes it.
package engine

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/loadgen/internal/common/loaderrors"
	"github.com/armadaproject/loadgen/internal/common/logging"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/generator"
	"github.com/armadaproject/loadgen/internal/loadgen/metrics"
	"github.com/armadaproject/loadgen/internal/loadgen/sink"
)

type Engine struct {
	sink     sink.Sink
	config   configuration.EngineConfig
	clock    clock.WithTicker
	recorder *metrics.Recorder
	logger   *log.Entry

	// Guards transitions and active
	mu     sync.Mutex
	active *run

	state  atomic.Int32
	closed atomic.Bool

	// The current or most recent run, for Status
	last atomic.Pointer[run]
}

// New creates an idle engine writing to s. Metrics are registered on reg.
func New(s sink.Sink, config configuration.EngineConfig, reg prometheus.Registerer, clk clock.WithTicker) *Engine {
	if config.ShutdownGracePeriod <= 0 {
		config.ShutdownGracePeriod = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.CapacityPolicy == "" {
		config.CapacityPolicy = configuration.CapacityWarn
	}
	return &Engine{
		sink:     s,
		config:   config,
		clock:    clk,
		recorder: metrics.NewRecorder(reg, s.Name()),
		logger:   log.WithField("sink", s.Name()),
	}
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Estimate projects the volume of req against this engine's sink, resolving the worker count as Start would.
func (e *Engine) Estimate(req configuration.LoadRequest) (estimation.Estimation, error) {
	if err := req.Validate(); err != nil {
		return estimation.Estimation{}, err
	}
	return estimation.EstimateRun(req, ResolveWorkers(req.WorkerThreads), e.sink.CostModel()), nil
}

// Start begins a run. It fails with *loaderrors.ErrConflict unless the engine is idle, with
// *loaderrors.ErrInvalidArgument for a malformed request, with *loaderrors.ErrCapacityExceeded if the
// capacity policy is reject and the rate is out of reach, and with *loaderrors.ErrSeed if the product
// pool can't be seeded. ctx only bounds seeding; the run itself outlives it.
func (e *Engine) Start(ctx context.Context, req configuration.LoadRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state := e.State(); state != Idle {
		return &loaderrors.ErrConflict{State: state.String(), Message: "a load run is already in progress"}
	}
	if err := req.Validate(); err != nil {
		return err
	}

	workers := ResolveWorkers(req.WorkerThreads)
	maxRate := estimation.MaxBatchesPerSecond(req.BatchSize, workers, e.sink.CostModel())
	if req.BatchesPerSecond > maxRate {
		if e.config.CapacityPolicy == configuration.CapacityReject {
			return &loaderrors.ErrCapacityExceeded{Requested: req.BatchesPerSecond, Estimated: maxRate}
		}
		e.logger.WithField("workers", workers).Warnf(
			"Requested %d batches/s exceeds estimated capacity of %d batches/s; excess ticks will be dropped",
			req.BatchesPerSecond, maxRate)
	}

	products, err := e.sink.EnsurePoolSeeded(ctx)
	if err != nil {
		var seedErr *loaderrors.ErrSeed
		if !errors.As(err, &seedErr) {
			err = &loaderrors.ErrSeed{Sink: e.sink.Name(), Err: err}
		}
		logging.WithStacktrace(e.logger, err).Error("Failed to seed product pool")
		return err
	}
	gen, err := generator.New(products, e.sink.Shape())
	if err != nil {
		return &loaderrors.ErrSeed{Sink: e.sink.Name(), Err: err}
	}

	resolved := req
	resolved.WorkerThreads = workers
	r := &run{
		request:   resolved,
		maxRate:   maxRate,
		startedAt: e.clock.Now(),
		metrics:   e.recorder.NewRun(),
		done:      make(chan struct{}),
	}
	r.gate = newAdmissionGate(2 * workers)
	r.pool = newWorkerPool(workers, r.gate.Capacity())
	r.scheduler = newScheduler(e.clock, tickPeriod(req.BatchesPerSecond), func() bool {
		return e.tick(r, gen)
	})
	e.last.Store(r)
	e.active = r
	e.state.Store(int32(Running))
	go r.scheduler.Run()

	e.logger.WithFields(log.Fields{
		"batchSize":        resolved.BatchSize,
		"batchesPerSecond": resolved.BatchesPerSecond,
		"durationMinutes":  resolved.DurationMinutes,
		"workers":          workers,
		"products":         len(products),
	}).Info("Load run started")
	return nil
}

// Stop ends the current run, waiting up to the shutdown grace period for in-flight batches.
// It is a no-op when idle.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	return nil
}

func (e *Engine) stopLocked() {
	r := e.active
	if r == nil {
		return
	}
	e.state.Store(int32(Stopping))

	r.scheduler.Stop()
	if !r.pool.Shutdown(e.config.ShutdownGracePeriod) {
		e.logger.Warnf("In-flight batches did not finish within %s and were cancelled", e.config.ShutdownGracePeriod)
	}

	r.finish(e.clock.Now())
	e.active = nil
	e.state.Store(int32(Idle))

	s := r.metrics.Snapshot()
	e.logger.WithFields(log.Fields{
		"submitted": s.BatchesSubmitted,
		"completed": s.BatchesCompleted,
		"failed":    s.BatchesFailed,
		"dropped":   s.TicksDropped,
		"records":   s.TotalRecords,
	}).Info("Load run stopped")
}

// Done returns a channel closed when the current, or most recent, run is over. Before any run it returns
// a closed channel.
func (e *Engine) Done() <-chan struct{} {
	if r := e.last.Load(); r != nil {
		return r.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Check reports the engine unhealthy once it has been closed.
func (e *Engine) Check(context.Context) error {
	if e.closed.Load() {
		return errors.New("load engine is shut down")
	}
	return nil
}

// Close stops any run and releases the sink.
func (e *Engine) Close() error {
	e.closed.Store(true)
	if err := e.Stop(); err != nil {
		return err
	}
	return e.sink.Close()
}

// tick is called by the scheduler of r. It returns false once the run has expired.
func (e *Engine) tick(r *run, gen *generator.Generator) bool {
	if e.clock.Since(r.startedAt) >= r.request.Duration() {
		// Stop waits for the scheduler, so it can't run on the scheduler goroutine.
		go e.expire(r)
		return false
	}
	if !r.gate.TryAcquire() {
		r.metrics.TickDropped()
		return true
	}
	r.metrics.BatchSubmitted()
	if !r.pool.Submit(e.batchJob(r, gen)) {
		// Unreachable while the queue is as large as the gate.
		r.gate.Release()
		r.metrics.BatchFailed()
	}
	return true
}

func (e *Engine) expire(r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != r {
		return
	}
	e.logger.Infof("Run duration of %d minutes reached", r.request.DurationMinutes)
	e.stopLocked()
}

// batchJob generates and writes one batch. Failures, including panics, are counted and logged; they never
// reach the scheduler or other jobs. A job still queued when the grace period runs out is discarded
// without writing and counted as failed, so submitted always equals completed plus failed.
func (e *Engine) batchJob(r *run, gen *generator.Generator) job {
	return func(ctx context.Context, rng *rand.Rand) {
		defer r.gate.Release()
		if ctx.Err() != nil {
			r.metrics.BatchFailed()
			return
		}
		observe := r.metrics.StartBatch()
		defer observe()
		defer func() {
			if p := recover(); p != nil {
				r.metrics.BatchFailed()
				e.logger.WithField("panic", p).Errorf("Batch panicked: %s", stack())
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, e.config.WriteTimeout)
		defer cancel()

		customers := gen.Batch(rng, r.request.BatchSize, e.clock.Now())
		written, err := e.sink.WriteBatch(ctx, customers)
		if err != nil {
			r.metrics.BatchFailed()
			logging.WithStacktrace(e.logger, err).Warn("Batch write failed")
			return
		}
		r.metrics.BatchCompleted(written)
	}
}

// ResolveWorkers returns the worker count a run uses: the requested count, or max(2, NumCPU) when unset.
func ResolveWorkers(requested int) int {
	if requested > 0 {
		return requested
	}
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}

func stack() string {
	buf := make([]byte, 4096)
	return string(buf[:runtime.Stack(buf, false)])
}

