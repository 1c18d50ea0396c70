package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}

	assert.NotPanics(t, func() {
		r.ObserveStageDuration("discover", time.Millisecond)
		r.ObserveBuildDuration(time.Second)
		r.ObserveCompileDuration(UnitCompiled, time.Second)
		r.IncUnitResult(UnitCached)
		r.AddCompilesInFlight(1)
		r.ObserveLinkDuration(time.Second, true)
		r.IncBuildOutcome(BuildSuccess)
	})
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveStageDuration("schedule", 150*time.Millisecond)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.ObserveCompileDuration(UnitCompiled, 200*time.Millisecond)
	pr.IncUnitResult(UnitCompiled)
	pr.IncUnitResult(UnitCompiled)
	pr.IncUnitResult(UnitFailed)
	pr.AddCompilesInFlight(2)
	pr.AddCompilesInFlight(-1)
	pr.ObserveLinkDuration(time.Second, true)
	pr.IncBuildOutcome(BuildSuccess)

	assert.InDelta(t, 2, testutil.ToFloat64(pr.unitResults.WithLabelValues("compiled")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.unitResults.WithLabelValues("failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.inFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.buildOutcome.WithLabelValues("success")), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestPrometheusRecorder_NilReceiver(t *testing.T) {
	var pr *PrometheusRecorder

	assert.NotPanics(t, func() {
		pr.IncUnitResult(UnitCached)
		pr.AddCompilesInFlight(1)
	})
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncBuildOutcome(BuildCompileFailed)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `incbuild_build_outcomes_total{outcome="compile_failed"} 1`)
}
