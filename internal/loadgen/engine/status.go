package engine

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/metrics"
)

type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	}
	return "Unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{Idle, Running, Stopping} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return errors.Errorf("unknown state %q", string(text))
}

// Status is a point-in-time view of the engine and of the current, or most recent, run.
type Status struct {
	State   State `json:"state"`
	Running bool  `json:"running"`
	// Config is the request of the run with the worker count resolved; nil before the first run
	Config              *configuration.LoadRequest `json:"config,omitempty"`
	TotalRecords        int64                      `json:"totalRecords"`
	BatchesSubmitted    int64                      `json:"batchesSubmitted"`
	BatchesCompleted    int64                      `json:"batchesCompleted"`
	BatchesFailed       int64                      `json:"batchesFailed"`
	TicksDropped        int64                      `json:"ticksDropped"`
	StartedAt           *time.Time                 `json:"startedAt,omitempty"`
	Elapsed             time.Duration              `json:"-"`
	ElapsedSeconds      float64                    `json:"elapsedSeconds"`
	ElapsedMinutes      float64                    `json:"elapsedMinutes"`
	MaxBatchesPerSecond int                        `json:"maxBatchesPerSecond"`
}

// run is everything belonging to one Start. Stragglers of a run that outlived its grace period only ever
// touch their own run, so they can't disturb the counters of the next one.
type run struct {
	request   configuration.LoadRequest
	maxRate   int
	startedAt time.Time
	// unix nanos at which the run went back to Idle, 0 while it is live
	stoppedAt atomic.Int64
	metrics   *metrics.Run

	gate      *admissionGate
	pool      *workerPool
	scheduler *scheduler
	done      chan struct{}
}

func (r *run) finish(now time.Time) {
	r.stoppedAt.Store(now.UnixNano())
	close(r.done)
}

// Status reads atomics only and never waits for a start or stop in progress.
func (e *Engine) Status() Status {
	state := e.State()
	status := Status{State: state, Running: state == Running}

	r := e.last.Load()
	if r == nil {
		return status
	}
	request := r.request
	startedAt := r.startedAt
	snapshot := r.metrics.Snapshot()

	end := e.clock.Now()
	if stopped := r.stoppedAt.Load(); stopped != 0 {
		end = time.Unix(0, stopped)
	}
	elapsed := end.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	status.Config = &request
	status.StartedAt = &startedAt
	status.TotalRecords = snapshot.TotalRecords
	status.BatchesSubmitted = snapshot.BatchesSubmitted
	status.BatchesCompleted = snapshot.BatchesCompleted
	status.BatchesFailed = snapshot.BatchesFailed
	status.TicksDropped = snapshot.TicksDropped
	status.Elapsed = elapsed
	status.ElapsedSeconds = elapsed.Seconds()
	status.ElapsedMinutes = elapsed.Minutes()
	status.MaxBatchesPerSecond = r.maxRate
	return status
}
