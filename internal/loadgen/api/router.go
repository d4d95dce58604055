// Package api exposes the engine over HTTP: start, stop, status and estimate under /api/generator,
// plus /metrics and /health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/armadaproject/loadgen/internal/common/health"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/engine"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
)

const defaultHealthTimeout = 5 * time.Second

// Controller is the part of *engine.Engine the API drives.
type Controller interface {
	Start(ctx context.Context, req configuration.LoadRequest) error
	Stop() error
	Status() engine.Status
	Estimate(req configuration.LoadRequest) (estimation.Estimation, error)
}

type Options struct {
	// Reported by /health; nil means always healthy
	Checker       health.Checker
	HealthTimeout time.Duration
	// Served on /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	// Name of the sink, echoed in estimates
	SinkName string
}

func NewRouter(c Controller, opts Options) http.Handler {
	if opts.Checker == nil {
		opts.Checker = health.CheckerFunc(func(context.Context) error { return nil })
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = defaultHealthTimeout
	}

	h := &generatorHandler{controller: c, sinkName: opts.SinkName}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/api/generator", h.mount)
	r.Method(http.MethodGet, "/health", health.NewHealthCheckHttpHandler(opts.Checker, opts.HealthTimeout))
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
