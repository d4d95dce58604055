package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/loadgen/internal/loadgen/engine"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/sink"
)

func estimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print the expected volume, size and capacity of a run without connecting to the sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd)
			if err != nil {
				return err
			}
			req, err := requestFromFlags(cmd, cfg.Request)
			if err != nil {
				return err
			}
			cost, err := sink.CostModelFor(cfg.Sink.Kind)
			if err != nil {
				return err
			}
			est := estimation.EstimateRun(req, engine.ResolveWorkers(req.WorkerThreads), cost)
			estimation.PrintEstimation(cmd.OutOrStdout(), string(cfg.Sink.Kind), est)
			if estimation.ShouldPrompt(est) {
				cmd.Println("The run command will ask for confirmation before starting this run.")
			}
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}
