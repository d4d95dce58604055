package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
)

type generatorHandler struct {
	controller Controller
	sinkName   string
}

func (h *generatorHandler) mount(r chi.Router) {
	r.Method(http.MethodPost, "/start", handlerFunc(h.start))
	r.Method(http.MethodPost, "/stop", handlerFunc(h.stop))
	r.Method(http.MethodGet, "/status", handlerFunc(h.status))
	r.Method(http.MethodPost, "/estimate", handlerFunc(h.estimate))
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *generatorHandler) start(w http.ResponseWriter, r *http.Request) error {
	var req configuration.LoadRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := h.controller.Start(r.Context(), req); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
	return nil
}

func (h *generatorHandler) stop(w http.ResponseWriter, _ *http.Request) error {
	if err := h.controller.Stop(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Generator stopped"})
	return nil
}

func (h *generatorHandler) status(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, h.controller.Status())
	return nil
}

type estimateResponse struct {
	Sink                      string  `json:"sink,omitempty"`
	Workers                   int     `json:"workers"`
	MaxBatchesPerSecond       int     `json:"maxBatchesPerSecond"`
	EffectiveBatchesPerSecond int     `json:"effectiveBatchesPerSecond"`
	ExceedsCapacity           bool    `json:"exceedsCapacity"`
	TotalBatches              int64   `json:"totalBatches"`
	TotalCustomers            int64   `json:"totalCustomers"`
	TotalEntities             int64   `json:"totalEntities"`
	EstimatedSizeBytes        int64   `json:"estimatedSizeBytes"`
	EstimatedSize             string  `json:"estimatedSize"`
	DurationSeconds           float64 `json:"durationSeconds"`
	RequiresConfirmation      bool    `json:"requiresConfirmation"`
}

func newEstimateResponse(sinkName string, est estimation.Estimation) estimateResponse {
	return estimateResponse{
		Sink:                      sinkName,
		Workers:                   est.Workers,
		MaxBatchesPerSecond:       est.MaxBatchesPerSecond,
		EffectiveBatchesPerSecond: est.EffectiveBatchesPerSecond,
		ExceedsCapacity:           est.ExceedsCapacity,
		TotalBatches:              est.TotalBatches,
		TotalCustomers:            est.TotalCustomers,
		TotalEntities:             est.TotalEntities,
		EstimatedSizeBytes:        est.EstimatedSizeBytes,
		EstimatedSize:             estimation.FormatBytes(est.EstimatedSizeBytes),
		DurationSeconds:           est.Duration.Round(time.Second).Seconds(),
		RequiresConfirmation:      estimation.ShouldPrompt(est),
	}
}

func (h *generatorHandler) estimate(w http.ResponseWriter, r *http.Request) error {
	var req configuration.LoadRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	est, err := h.controller.Estimate(req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newEstimateResponse(h.sinkName, est))
	return nil
}
