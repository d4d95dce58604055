package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/armadaproject/loadgen/internal/common/health"
	"github.com/armadaproject/loadgen/internal/common/loaderrors"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/engine"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/sink"
)

func newTestRouter(t *testing.T, policy configuration.CapacityPolicy) (http.Handler, *engine.Engine) {
	t.Helper()
	s := sink.NewMemorySink(sink.Options{ProductPoolSize: 10})
	reg := prometheus.NewRegistry()
	e := engine.New(s, configuration.EngineConfig{
		CapacityPolicy:      policy,
		ShutdownGracePeriod: 5 * time.Second,
		WriteTimeout:        5 * time.Second,
	}, reg, clock.RealClock{})
	t.Cleanup(func() { _ = e.Close() })
	return NewRouter(e, Options{Checker: s, Gatherer: reg, SinkName: s.Name()}), e
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) engine.Status {
	t.Helper()
	var status engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Err
}

func TestStartStatusStop(t *testing.T) {
	h, e := newTestRouter(t, configuration.CapacityWarn)

	rec := do(t, h, http.MethodGet, "/api/generator/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeStatus(t, rec).Running)

	rec = do(t, h, http.MethodPost, "/api/generator/start", `{"batchSize":5,"batchesPerSecond":2,"durationMinutes":1,"workerThreads":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	status := decodeStatus(t, rec)
	assert.True(t, status.Running)
	require.NotNil(t, status.Config)
	assert.Equal(t, 2, status.Config.WorkerThreads)
	assert.Contains(t, rec.Body.String(), `"state":"Running"`)

	rec = do(t, h, http.MethodPost, "/api/generator/start", `{"batchSize":5,"batchesPerSecond":2,"durationMinutes":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, decodeError(t, rec).Status)

	assert.Eventually(t, func() bool { return e.Status().BatchesCompleted > 0 }, 10*time.Second, 10*time.Millisecond)

	rec = do(t, h, http.MethodPost, "/api/generator/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Generator stopped"}`, rec.Body.String())

	// Stop is idempotent
	rec = do(t, h, http.MethodPost, "/api/generator/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/generator/status", "")
	status = decodeStatus(t, rec)
	assert.False(t, status.Running)
	assert.Greater(t, status.TotalRecords, int64(0))
}

func TestStart_Invalid(t *testing.T) {
	h, e := newTestRouter(t, configuration.CapacityWarn)

	tests := map[string]struct {
		body    string
		details int
	}{
		"validation":     {body: `{"batchSize":0,"batchesPerSecond":0,"durationMinutes":1}`, details: 2},
		"malformed json": {body: `{"batchSize":`},
		"unknown field":  {body: `{"batchSize":1,"rate":3}`},
		"wrong type":     {body: `{"batchSize":"ten"}`},
		"empty body":     {body: ``},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/generator/start", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, http.StatusBadRequest, body.Status)
			assert.Len(t, body.Details, tc.details)
			assert.Equal(t, engine.Idle, e.State())
		})
	}
}

func TestStart_CapacityRejected(t *testing.T) {
	h, _ := newTestRouter(t, configuration.CapacityReject)
	rec := do(t, h, http.MethodPost, "/api/generator/start", `{"batchSize":1000,"batchesPerSecond":100000,"durationMinutes":1,"workerThreads":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEstimate(t *testing.T) {
	h, _ := newTestRouter(t, configuration.CapacityWarn)
	rec := do(t, h, http.MethodPost, "/api/generator/estimate", `{"batchSize":100,"batchesPerSecond":10,"durationMinutes":120,"workerThreads":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var est estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &est))
	assert.Equal(t, "memory", est.Sink)
	assert.Equal(t, 4, est.Workers)
	assert.Equal(t, int64(10*7200), est.TotalBatches)
	assert.Equal(t, int64(10*7200*100), est.TotalCustomers)
	assert.Equal(t, float64(7200), est.DurationSeconds)
	assert.True(t, est.RequiresConfirmation)

	rec = do(t, h, http.MethodPost, "/api/generator/estimate", `{"batchSize":-1,"batchesPerSecond":10,"durationMinutes":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubController struct {
	startErr error
}

func (s *stubController) Start(context.Context, configuration.LoadRequest) error { return s.startErr }
func (s *stubController) Stop() error                                           { return nil }
func (s *stubController) Status() engine.Status                                 { return engine.Status{} }
func (s *stubController) Estimate(configuration.LoadRequest) (estimation.Estimation, error) {
	return estimation.Estimation{}, nil
}

func TestStart_ErrorMapping(t *testing.T) {
	tests := map[string]struct {
		err  error
		code int
	}{
		"seed":     {err: &loaderrors.ErrSeed{Sink: "redis", Err: errors.New("timeout")}, code: http.StatusInternalServerError},
		"capacity": {err: &loaderrors.ErrCapacityExceeded{Requested: 10, Estimated: 5}, code: http.StatusUnprocessableEntity},
		"wrapped":  {err: errors.Wrap(&loaderrors.ErrConflict{State: "Stopping"}, "start"), code: http.StatusConflict},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h := NewRouter(&stubController{startErr: tc.err}, Options{})
			rec := do(t, h, http.MethodPost, "/api/generator/start", `{"batchSize":1,"batchesPerSecond":1,"durationMinutes":1}`)
			assert.Equal(t, tc.code, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.err.Error(), body.Message)
		})
	}
}

func TestHealth(t *testing.T) {
	h := NewRouter(&stubController{}, Options{})
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h = NewRouter(&stubController{}, Options{Checker: health.CheckerFunc(func(context.Context) error {
		return errors.New("sink unreachable")
	})})
	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "sink unreachable")
}

func TestMetrics(t *testing.T) {
	h, e := newTestRouter(t, configuration.CapacityWarn)
	require.NoError(t, e.Start(context.Background(), configuration.LoadRequest{BatchSize: 1, BatchesPerSecond: 5, DurationMinutes: 1}))
	assert.Eventually(t, func() bool { return e.Status().BatchesCompleted > 0 }, 10*time.Second, 10*time.Millisecond)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `loadgen_batches_completed_total{sink="memory"}`)
	assert.Contains(t, rec.Body.String(), "loadgen_batch_duration_seconds_bucket")

	// Without a gatherer there is no metrics endpoint
	rec = do(t, NewRouter(&stubController{}, Options{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanicsAreRecovered(t *testing.T) {
	h := NewRouter(&panickingController{}, Options{})
	rec := do(t, h, http.MethodGet, "/api/generator/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panickingController struct {
	stubController
}

func (p *panickingController) Status() engine.Status { panic("boom") }
