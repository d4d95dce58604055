package estimation

import (
	"fmt"
	"math"
	"time"

	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
)

// CostModel is the assumed cost of writing one batch to a sink: a fixed overhead per batch
// (round trips, transaction setup) plus a cost per customer aggregate.
type CostModel struct {
	FixedOverheadMs float64
	PerEntityMs     float64
}

func (c CostModel) PerBatchMs(batchSize int) float64 {
	return c.FixedOverheadMs + float64(batchSize)*c.PerEntityMs
}

// MaxBatchesPerSecond estimates the highest sustainable batch rate for the given batch size and worker count.
// It is non-increasing in batchSize, non-decreasing in workers and never less than 1.
func MaxBatchesPerSecond(batchSize int, workers int, cost CostModel) int {
	perBatchMs := cost.PerBatchMs(batchSize)
	if perBatchMs <= 0 {
		return math.MaxInt32
	}
	rate := math.Floor(float64(workers) * 1000 / perBatchMs)
	if rate < 1 {
		return 1
	}
	if rate > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(rate)
}

const (
	// 1-5 orders per customer and 2-7 items per order, uniformly
	avgOrdersPerCustomer = 3.0
	avgItemsPerOrder     = 4.5
	// customer + profile + orders + items
	avgEntitiesPerCustomer = 1 + 1 + avgOrdersPerCustomer + avgOrdersPerCustomer*avgItemsPerOrder

	avgBytesPerCustomer = 2900
)

type Estimation struct {
	Workers                   int
	MaxBatchesPerSecond       int
	EffectiveBatchesPerSecond int
	ExceedsCapacity           bool
	TotalBatches              int64
	TotalCustomers            int64
	TotalEntities             int64
	EstimatedSizeBytes        int64
	Duration                  time.Duration
}

// EstimateRun projects the volume a run will write. The request's rate is capped at the sink's estimated
// capacity because ticks beyond it are dropped.
func EstimateRun(req configuration.LoadRequest, workers int, cost CostModel) Estimation {
	maxRate := MaxBatchesPerSecond(req.BatchSize, workers, cost)
	effective := req.BatchesPerSecond
	if effective > maxRate {
		effective = maxRate
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	totalBatches := int64(effective) * int64(duration/time.Second)
	totalCustomers := totalBatches * int64(req.BatchSize)

	return Estimation{
		Workers:                   workers,
		MaxBatchesPerSecond:       maxRate,
		EffectiveBatchesPerSecond: effective,
		ExceedsCapacity:           req.BatchesPerSecond > maxRate,
		TotalBatches:              totalBatches,
		TotalCustomers:            totalCustomers,
		TotalEntities:             int64(float64(totalCustomers) * avgEntitiesPerCustomer),
		EstimatedSizeBytes:        totalCustomers * avgBytesPerCustomer,
		Duration:                  duration,
	}
}

func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
