package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "loadgen_"

// Recorder owns the prometheus collectors of an engine. It lives as long as the engine; counters
// scoped to a single run live in Run.
type Recorder struct {
	batchesSubmitted prometheus.Counter
	batchesCompleted prometheus.Counter
	batchesFailed    prometheus.Counter
	recordsTotal     prometheus.Counter
	ticksDropped     prometheus.Counter
	batchDuration    prometheus.Histogram
	inflightBatches  prometheus.Gauge
}

// NewRecorder registers the collectors on reg, labelled with the sink they measure.
func NewRecorder(reg prometheus.Registerer, sink string) *Recorder {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"sink": sink}
	return &Recorder{
		batchesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name:        MetricsPrefix + "batches_submitted_total",
			Help:        "Number of batches admitted and handed to the worker pool",
			ConstLabels: labels,
		}),
		batchesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name:        MetricsPrefix + "batches_completed_total",
			Help:        "Number of batches written successfully",
			ConstLabels: labels,
		}),
		batchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name:        MetricsPrefix + "batches_failed_total",
			Help:        "Number of batches whose write failed",
			ConstLabels: labels,
		}),
		recordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        MetricsPrefix + "records_total",
			Help:        "Number of entities written",
			ConstLabels: labels,
		}),
		ticksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name:        MetricsPrefix + "ticks_dropped_total",
			Help:        "Number of scheduler ticks skipped because too many batches were in flight",
			ConstLabels: labels,
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        MetricsPrefix + "batch_duration_seconds",
			Help:        "Time taken to generate and write one batch",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
			ConstLabels: labels,
		}),
		inflightBatches: factory.NewGauge(prometheus.GaugeOpts{
			Name:        MetricsPrefix + "inflight_batches",
			Help:        "Number of admitted batches not yet finished",
			ConstLabels: labels,
		}),
	}
}

// NewRun returns zeroed counters for a new run, reporting to r as well.
func (r *Recorder) NewRun() *Run {
	return &Run{recorder: r}
}

// Run holds the counters of one run. All methods are safe for concurrent use.
type Run struct {
	recorder  *Recorder
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	records   atomic.Int64
	dropped   atomic.Int64
}

type Snapshot struct {
	BatchesSubmitted int64
	BatchesCompleted int64
	BatchesFailed    int64
	TotalRecords     int64
	TicksDropped     int64
}

func (m *Run) BatchSubmitted() {
	m.submitted.Add(1)
	m.recorder.batchesSubmitted.Inc()
	m.recorder.inflightBatches.Inc()
}

func (m *Run) TickDropped() {
	m.dropped.Add(1)
	m.recorder.ticksDropped.Inc()
}

// BatchCompleted records a successful write of records entities.
func (m *Run) BatchCompleted(records int) {
	m.completed.Add(1)
	m.records.Add(int64(records))
	m.recorder.batchesCompleted.Inc()
	m.recorder.recordsTotal.Add(float64(records))
}

func (m *Run) BatchFailed() {
	m.failed.Add(1)
	m.recorder.batchesFailed.Inc()
}

// StartBatch starts timing a batch. The returned func must be called exactly once when the batch is done,
// whatever its outcome.
func (m *Run) StartBatch() func() {
	timer := prometheus.NewTimer(m.recorder.batchDuration)
	return func() {
		timer.ObserveDuration()
		m.recorder.inflightBatches.Dec()
	}
}

func (m *Run) Snapshot() Snapshot {
	return Snapshot{
		BatchesSubmitted: m.submitted.Load(),
		BatchesCompleted: m.completed.Load(),
		BatchesFailed:    m.failed.Load(),
		TotalRecords:     m.records.Load(),
		TicksDropped:     m.dropped.Load(),
	}
}
