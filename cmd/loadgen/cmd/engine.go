package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/loadgen/internal/common/health"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/engine"
	"github.com/armadaproject/loadgen/internal/loadgen/sink"
)

// newEngine connects to the configured sink and wraps it in an engine registering its metrics on a fresh
// registry. The returned gatherer also includes the default registry, which carries the go and process
// collectors and the per-level log counters.
func newEngine(ctx context.Context, cfg configuration.Configuration) (*engine.Engine, sink.Sink, prometheus.Gatherer, error) {
	s, err := sink.New(ctx, cfg.Sink, sink.Options{ProductPoolSize: cfg.Engine.ProductPoolSize})
	if err != nil {
		return nil, nil, nil, err
	}
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		_ = s.Close()
		return nil, nil, nil, err
	}
	log.AddHook(hook)

	reg := prometheus.NewRegistry()
	gatherer := prometheus.Gatherers{reg, prometheus.DefaultGatherer}
	return engine.New(s, cfg.Engine, reg, clock.RealClock{}), s, gatherer, nil
}

// newHealthChecker is healthy while the sink is reachable and the engine hasn't been shut down.
func newHealthChecker(s sink.Sink, e *engine.Engine) health.Checker {
	return health.NewMultiChecker(s, e)
}

// serveMetrics exposes gatherer on port until the returned function is called.
func serveMetrics(port uint16, gatherer prometheus.Gatherer) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("Serving metrics on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
