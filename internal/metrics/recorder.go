package metrics

import "time"

// UnitLabel enumerates per-unit result categories for counters.
type UnitLabel string

const (
	UnitCached   UnitLabel = "cached"
	UnitCompiled UnitLabel = "compiled"
	UnitFailed   UnitLabel = "failed"
	UnitTimeout  UnitLabel = "timeout"
)

// BuildOutcomeLabel enumerates final build outcomes.
type BuildOutcomeLabel string

const (
	BuildSuccess       BuildOutcomeLabel = "success"
	BuildEmpty         BuildOutcomeLabel = "empty"
	BuildCompileFailed BuildOutcomeLabel = "compile_failed"
	BuildLinkFailed    BuildOutcomeLabel = "link_failed"
	BuildError         BuildOutcomeLabel = "error"
)

// Recorder defines observability hooks for the build. All methods must be
// safe to call concurrently.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	ObserveCompileDuration(result UnitLabel, d time.Duration)
	IncUnitResult(result UnitLabel)
	AddCompilesInFlight(delta int)
	ObserveLinkDuration(d time.Duration, success bool)
	IncBuildOutcome(outcome BuildOutcomeLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)      {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)              {}
func (NoopRecorder) ObserveCompileDuration(UnitLabel, time.Duration) {}
func (NoopRecorder) IncUnitResult(UnitLabel)                         {}
func (NoopRecorder) AddCompilesInFlight(int)                         {}
func (NoopRecorder) ObserveLinkDuration(time.Duration, bool)         {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)               {}
