package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "incbuild"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	buildDuration   prom.Histogram
	compileDuration *prom.HistogramVec
	unitResults     *prom.CounterVec
	inFlight        prom.Gauge
	linkDuration    *prom.HistogramVec
	buildOutcome    *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		compileDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual compile invocations",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 12),
		}, []string{"result"}),
		unitResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "unit_results_total",
			Help:      "Unit results by outcome",
		}, []string{"result"}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "compiles_in_flight",
			Help:      "Compile invocations currently running",
		}),
		linkDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "link_duration_seconds",
			Help:      "Duration of link invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		pr.stageDuration,
		pr.buildDuration,
		pr.compileDuration,
		pr.unitResults,
		pr.inFlight,
		pr.linkDuration,
		pr.buildOutcome,
	)

	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveCompileDuration(result UnitLabel, d time.Duration) {
	if p == nil {
		return
	}
	p.compileDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUnitResult(result UnitLabel) {
	if p == nil {
		return
	}
	p.unitResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) AddCompilesInFlight(delta int) {
	if p == nil {
		return
	}
	p.inFlight.Add(float64(delta))
}

func (p *PrometheusRecorder) ObserveLinkDuration(d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.linkDuration.WithLabelValues(res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics of reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
