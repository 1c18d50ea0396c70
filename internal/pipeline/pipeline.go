// Package pipeline drives one build: library, discovery, compile, link.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Norgate-AV/incbuild/internal/cache"
	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/discovery"
	"github.com/Norgate-AV/incbuild/internal/linker"
	"github.com/Norgate-AV/incbuild/internal/logfields"
	"github.com/Norgate-AV/incbuild/internal/metrics"
	"github.com/Norgate-AV/incbuild/internal/scheduler"
	"github.com/Norgate-AV/incbuild/internal/staleness"
	"github.com/Norgate-AV/incbuild/internal/toolchain"
)

// Stage names, used for progress output and metrics
const (
	StageToolchain = "toolchain"
	StageLibrary   = "library"
	StageDiscover  = "discover"
	StageCompile   = "compile"
	StageLink      = "link"
)

// Report summarises one run
type Report struct {
	RunID   string
	Mode    config.Mode
	Started time.Time

	// First line of the compiler version, when the toolchain was probed
	Toolchain      string
	LibraryRebuilt bool

	Results  []scheduler.Result
	Compiled int
	Cached   int
	Failed   int

	Link      *linker.Result
	Artifacts []linker.Artifact

	Outcome  metrics.BuildOutcomeLabel
	Duration time.Duration
}

// Reporter receives progress events. Calls never overlap.
type Reporter interface {
	Stage(name string)
	UnitResult(r scheduler.Result)
	Finish(report *Report, err error)
}

// NopReporter discards every event
type NopReporter struct{}

func (NopReporter) Stage(string) {}
func (NopReporter) UnitResult(scheduler.Result) {}
func (NopReporter) Finish(*Report, error) {}

// Library makes sure the external archive is ready
type Library interface {
	Ensure(ctx context.Context) (bool, error)
}

// Prober is implemented by adapters that can check the toolchain is usable
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// Pipeline runs builds for one configuration
type Pipeline struct {
	cfg      config.Config
	adapter  toolchain.Adapter
	library  Library
	reporter Reporter
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLibrary sets the library step, skipped when unset
func WithLibrary(l Library) Option {
	return func(p *Pipeline) { p.library = l }
}

// WithReporter sets the progress reporter
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline for cfg using adapter for every compile and the link
func New(cfg config.Config, adapter toolchain.Adapter, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		adapter:  adapter,
		reporter: NopReporter{},
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run performs one build. The returned report is never nil; on failure it
// describes how far the build got. Compile failures are returned together as
// *CompileErrors and a failed link as *linker.LinkError.
func (p *Pipeline) Run(ctx context.Context) (report *Report, err error) {
	report = &Report{
		RunID:   uuid.NewString(),
		Mode:    p.cfg.Mode,
		Started: time.Now(),
	}

	logger := p.logger.With(logfields.RunID(report.RunID), logfields.Mode(p.cfg.Mode.String()))

	defer func() {
		report.Duration = time.Since(report.Started)
		report.Outcome = outcome(err)

		p.recorder.ObserveBuildDuration(report.Duration)
		p.recorder.IncBuildOutcome(report.Outcome)
		p.reporter.Finish(report, err)

		logger.Info("Build finished",
			logfields.Status(string(report.Outcome)),
			logfields.Duration(report.Duration),
			logfields.Error(err))
	}()

	if prober, ok := p.adapter.(Prober); ok {
		done := p.stage(StageToolchain)
		version, err := prober.Probe(ctx)
		done()

		if err != nil {
			return report, err
		}

		report.Toolchain = version
	}

	store := cache.Load(p.cfg.CacheFile(), logger)
	logger.Debug("Loaded build cache", logfields.Path(store.Path()), logfields.Count(store.Len()))

	if p.library != nil {
		done := p.stage(StageLibrary)
		rebuilt, err := p.library.Ensure(ctx)
		done()

		if err != nil {
			return report, err
		}

		report.LibraryRebuilt = rebuilt
	}

	done := p.stage(StageDiscover)
	units, err := discovery.Discover(p.cfg)
	done()

	if err != nil {
		return report, fmt.Errorf("failed to discover units: %w", err)
	}

	if len(units) == 0 {
		return report, fmt.Errorf("%w in %s", ErrDiscoveryEmpty, p.cfg.SourceDir)
	}

	logger.Debug("Discovered units", logfields.Count(len(units)))

	done = p.stage(StageCompile)
	sched := scheduler.New(p.cfg, staleness.New(store), store, p.adapter,
		scheduler.WithRecorder(p.recorder),
		scheduler.WithLogger(logger),
		scheduler.WithResultHook(p.reporter.UnitResult),
	)
	results := sched.Run(ctx, units)
	done()

	report.Results = results
	report.Compiled = scheduler.Count(results, scheduler.Compiled)
	report.Cached = scheduler.Count(results, scheduler.Cached)
	report.Failed = scheduler.Count(results, scheduler.Failed)

	// Persist before deciding anything so successful compiles survive a failed run
	if err := store.Flush(); err != nil {
		return report, err
	}

	if failed := scheduler.Failures(results); len(failed) > 0 {
		return report, newCompileErrors(failed)
	}

	done = p.stage(StageLink)
	agg := linker.New(p.cfg, p.adapter, p.recorder, logger)
	res, err := agg.Link(ctx, linker.Input{
		Results:   results,
		Libraries: p.cfg.Libraries(),
		Force:     report.LibraryRebuilt,
	})
	done()

	report.Link = &res
	if err != nil {
		return report, err
	}

	report.Artifacts = linker.Artifacts(res.Output)

	return report, nil
}

// stage announces a stage and returns a func recording its duration
func (p *Pipeline) stage(name string) func() {
	p.reporter.Stage(name)
	start := time.Now()

	return func() {
		elapsed := time.Since(start)
		p.recorder.ObserveStageDuration(name, elapsed)
		p.logger.Debug("Stage finished", logfields.Stage(name), logfields.Duration(elapsed))
	}
}

func outcome(err error) metrics.BuildOutcomeLabel {
	var compileErrs *CompileErrors
	var linkErr *linker.LinkError

	switch {
	case err == nil:
		return metrics.BuildSuccess
	case errors.Is(err, ErrDiscoveryEmpty):
		return metrics.BuildEmpty
	case errors.As(err, &compileErrs):
		return metrics.BuildCompileFailed
	case errors.As(err, &linkErr):
		return metrics.BuildLinkFailed
	}

	return metrics.BuildError
}

// Clean removes the build output directory together with the cache of cfg
func Clean(cfg config.Config) error {
	return cache.Clean(cfg.BuildDir, cfg.CacheFile())
}
