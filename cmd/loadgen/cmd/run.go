package cmd

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/armadaproject/loadgen/internal/common/app"
	"github.com/armadaproject/loadgen/internal/loadgen/engine"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
)

const yesFlag = "yes"

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single load run in the foreground and exit when it completes",
		Long: `Run a single load run in the foreground and exit when it completes.

Runs large enough to need confirmation (over a million customers, over 1GB or over an hour)
ask before starting unless --yes is given. SIGINT or SIGTERM stops the run early.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd)
			if err != nil {
				return err
			}
			if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
				log.SetLevel(level)
			}
			req, err := requestFromFlags(cmd, cfg.Request)
			if err != nil {
				return err
			}
			yes, err := cmd.Flags().GetBool(yesFlag)
			if err != nil {
				return err
			}

			ctx := app.CreateContextWithShutdown()
			e, s, gatherer, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := e.Close(); err != nil {
					log.WithError(err).Warn("Failed to close sink")
				}
			}()

			est, err := e.Estimate(req)
			if err != nil {
				return err
			}
			if estimation.ShouldPrompt(est) && !yes {
				ok, err := estimation.DisplayEstimationAndConfirm(cmd.OutOrStdout(), cmd.InOrStdin(), s.Name(), est)
				if err != nil {
					return err
				}
				if !ok {
					log.Info("Run cancelled")
					return nil
				}
			}

			if cfg.MetricsPort > 0 {
				shutdown := serveMetrics(cfg.MetricsPort, gatherer)
				defer shutdown()
			}

			if err := e.Start(ctx, req); err != nil {
				return err
			}
			waitForRun(ctx.Done(), e, cfg.Engine.ProgressInterval)
			if err := e.Stop(); err != nil {
				return err
			}
			logStatus(e.Status(), "Load run finished")
			return nil
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().Bool(yesFlag, false, "Start large runs without asking for confirmation")
	return cmd
}

// waitForRun blocks until the run ends or interrupted is closed, logging progress every interval.
func waitForRun(interrupted <-chan struct{}, e *engine.Engine, interval time.Duration) {
	var progress <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		progress = ticker.C
	}
	for {
		select {
		case <-interrupted:
			return
		case <-e.Done():
			return
		case <-progress:
			logStatus(e.Status(), "Load run progress")
		}
	}
}

func logStatus(status engine.Status, msg string) {
	log.WithFields(log.Fields{
		"records":   status.TotalRecords,
		"submitted": status.BatchesSubmitted,
		"completed": status.BatchesCompleted,
		"failed":    status.BatchesFailed,
		"dropped":   status.TicksDropped,
		"elapsed":   status.Elapsed.Truncate(time.Second),
	}).Info(msg)
}
