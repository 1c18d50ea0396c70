// Package scheduler compiles stale units on a bounded worker pool.
//
// Every unit yields exactly one Result. Up to date units are marked Cached
// without submitting a task. Stale units run on a pool of at most K
// concurrent compiles; a failure never cancels its siblings and nothing is
// retried. Successful compiles are recorded in the cache store as they land,
// from a single collector goroutine. Run returns once every task has drained.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/incbuild/internal/cache"
	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/discovery"
	"github.com/Norgate-AV/incbuild/internal/logfields"
	"github.com/Norgate-AV/incbuild/internal/metrics"
	"github.com/Norgate-AV/incbuild/internal/staleness"
	"github.com/Norgate-AV/incbuild/internal/toolchain"
)

// Status is the resolution of one unit
type Status int

const (
	Cached Status = iota
	Compiled
	Failed
)

func (s Status) String() string {
	switch s {
	case Cached:
		return "cached"
	case Compiled:
		return "compiled"
	case Failed:
		return "failed"
	}

	return "unknown"
}

// Result is the outcome of one unit for this run
type Result struct {
	Unit discovery.Unit
	// Object path, set for Cached and Compiled
	Output string
	Status Status
	// Diagnostic is set iff Status is Failed
	Diagnostic string
	// Timeout marks a failure caused by the compile time limit
	Timeout bool
	// Why the unit was (or was not) compiled
	Reason   staleness.Reason
	Duration time.Duration

	fingerprint string
}

// Oracle decides whether a unit must be compiled
type Oracle interface {
	NeedsRebuild(unit discovery.Unit) staleness.Verdict
}

// Store receives the records of successful compiles
type Store interface {
	Record(id, fingerprint, output string)
}

// Compiler runs a single compile
type Compiler interface {
	Compile(ctx context.Context, req toolchain.CompileRequest) toolchain.Outcome
}

// Scheduler dispatches stale units to the compiler
type Scheduler struct {
	workers  int
	flags    []string
	includes []string

	oracle   Oracle
	store    Store
	compiler Compiler

	fingerprint func(path string) (string, error)
	recorder    metrics.Recorder
	logger      *slog.Logger
	onResult    func(Result)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithResultHook registers fn to be called once per result, in completion
// order. Calls never overlap.
func WithResultHook(fn func(Result)) Option {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// New creates a scheduler for the compile settings of cfg
func New(cfg config.Config, oracle Oracle, store Store, compiler Compiler, opts ...Option) *Scheduler {
	s := &Scheduler{
		workers:     cfg.Jobs,
		flags:       cfg.CompileFlags,
		includes:    cfg.CompileIncludes(),
		oracle:      oracle,
		store:       store,
		compiler:    compiler,
		fingerprint: cache.Fingerprint,
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}

	if s.workers < 1 {
		s.workers = 1
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run resolves every unit and returns the results in completion order
func (s *Scheduler) Run(ctx context.Context, units []discovery.Unit) []Result {
	results := make([]Result, 0, len(units))
	done := make(chan Result)
	collected := make(chan struct{})

	go func() {
		defer close(collected)

		for r := range done {
			if r.Status == Compiled {
				s.store.Record(r.Unit.ID(), r.fingerprint, r.Output)
			}

			s.observe(r)
			results = append(results, r)

			if s.onResult != nil {
				s.onResult(r)
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, unit := range units {
		verdict := s.oracle.NeedsRebuild(unit)
		if !verdict.Stale {
			done <- Result{
				Unit:   unit,
				Output: unit.Object,
				Status: Cached,
				Reason: verdict.Reason,
			}

			continue
		}

		s.logger.Debug("Unit is stale",
			logfields.Unit(unit.ID()),
			logfields.Object(unit.Object),
			logfields.Reason(string(verdict.Reason)),
			slog.String("dependency", verdict.Dependency))

		unit := unit
		g.Go(func() error {
			done <- s.compile(ctx, unit, verdict.Reason)
			return nil
		})
	}

	// Tasks never return errors; failures travel in their Result
	_ = g.Wait()
	close(done)
	<-collected

	return results
}

func (s *Scheduler) compile(ctx context.Context, unit discovery.Unit, reason staleness.Reason) Result {
	res := Result{Unit: unit, Reason: reason}

	// Fingerprint the content being compiled, not whatever is on disk afterwards
	sum, err := s.fingerprint(unit.Source)
	if err != nil {
		res.Status = Failed
		res.Diagnostic = fmt.Sprintf("failed to read source: %v", err)
		return res
	}

	s.recorder.AddCompilesInFlight(1)
	out := s.compiler.Compile(ctx, toolchain.CompileRequest{
		Source:      unit.Source,
		Object:      unit.Object,
		IncludeDirs: s.includes,
		Flags:       s.flags,
	})
	s.recorder.AddCompilesInFlight(-1)

	res.Duration = out.Duration

	switch out.Status {
	case toolchain.Success:
		res.Status = Compiled
		res.Output = out.Path
		res.fingerprint = sum
	case toolchain.Timeout:
		res.Status = Failed
		res.Timeout = true
		res.Diagnostic = out.Diagnostic
	default:
		res.Status = Failed
		res.Diagnostic = out.Diagnostic
	}

	return res
}

func (s *Scheduler) observe(r Result) {
	label := metrics.UnitLabel(r.Status.String())
	if r.Timeout {
		label = metrics.UnitTimeout
	}

	s.recorder.IncUnitResult(label)

	if r.Status != Cached {
		s.recorder.ObserveCompileDuration(label, r.Duration)
	}

	attrs := []any{
		logfields.Unit(r.Unit.ID()),
		logfields.Status(string(label)),
		logfields.Duration(r.Duration),
	}

	if r.Status == Failed {
		s.logger.Warn("Compile failed", attrs...)
		return
	}

	s.logger.Debug("Unit resolved", attrs...)
}

// Failures returns the failed results of a batch
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Status == Failed {
			failed = append(failed, r)
		}
	}

	return failed
}

// Count returns how many results have the given status
func Count(results []Result, status Status) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}

	return n
}
