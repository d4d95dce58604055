package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
)

const (
	batchSizeFlag        = "batch-size"
	batchesPerSecondFlag = "batches-per-second"
	durationFlag         = "duration-minutes"
	workersFlag          = "worker-threads"
)

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().Int(batchSizeFlag, 0, "Customers generated per batch (default from config)")
	cmd.Flags().Int(batchesPerSecondFlag, 0, "Target batch submission rate (default from config)")
	cmd.Flags().Int(durationFlag, 0, "Run duration in minutes (default from config)")
	cmd.Flags().Int(workersFlag, 0, "Concurrent writers; 0 picks max(2, CPUs) (default from config)")
}

// requestFromFlags starts from the configured request and overrides each field whose flag was set.
func requestFromFlags(cmd *cobra.Command, defaults configuration.LoadRequest) (configuration.LoadRequest, error) {
	req := defaults
	overrides := []struct {
		flag  string
		field *int
	}{
		{batchSizeFlag, &req.BatchSize},
		{batchesPerSecondFlag, &req.BatchesPerSecond},
		{durationFlag, &req.DurationMinutes},
		{workersFlag, &req.WorkerThreads},
	}
	for _, o := range overrides {
		if !cmd.Flags().Changed(o.flag) {
			continue
		}
		v, err := cmd.Flags().GetInt(o.flag)
		if err != nil {
			return req, err
		}
		*o.field = v
	}
	return req, req.Validate()
}
