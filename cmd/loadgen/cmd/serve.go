package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/armadaproject/loadgen/internal/common/app"
	"github.com/armadaproject/loadgen/internal/common/logging"
	"github.com/armadaproject/loadgen/internal/loadgen/api"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API, starting and stopping runs on request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd)
			if err != nil {
				return err
			}
			logging.MustConfigureLogging(cfg.Logging)

			ctx := app.CreateContextWithShutdown()
			e, s, gatherer, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: fmt.Sprintf(":%d", cfg.Api.Port),
				Handler: api.NewRouter(e, api.Options{
					Checker:       newHealthChecker(s, e),
					HealthTimeout: cfg.Api.HealthTimeout,
					Gatherer:      gatherer,
					SinkName:      s.Name(),
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Infof("Serving control API on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGracePeriod)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.WithError(err).Warn("HTTP server did not shut down cleanly")
				}
				return e.Close()
			})
			return g.Wait()
		},
	}
}
