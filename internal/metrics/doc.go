// Package metrics records build metrics.
//
// Components receive a Recorder and never check for nil: NoopRecorder is the
// default, and PrometheusRecorder is swapped in when the CLI serves metrics
// (see the serve command and --server).
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	sched := scheduler.New(cfg, oracle, store, adapter, scheduler.WithRecorder(recorder))
package metrics
