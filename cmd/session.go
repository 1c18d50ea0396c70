package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/console"
	"github.com/Norgate-AV/incbuild/internal/history"
	"github.com/Norgate-AV/incbuild/internal/library"
	"github.com/Norgate-AV/incbuild/internal/logfields"
	"github.com/Norgate-AV/incbuild/internal/metrics"
	"github.com/Norgate-AV/incbuild/internal/pipeline"
	"github.com/Norgate-AV/incbuild/internal/scheduler"
	"github.com/Norgate-AV/incbuild/internal/server"
	"github.com/Norgate-AV/incbuild/internal/toolchain"
	"github.com/Norgate-AV/incbuild/internal/utils"
)

// newAdapter creates the toolchain used for compiling and linking
var newAdapter = func(cfg config.Config) toolchain.Adapter {
	return toolchain.NewEmscripten(cfg, toolchain.NewRunner())
}

// newLibrary creates the library step, nil when the library is skipped
var newLibrary = func(cfg config.Config, logger *slog.Logger) pipeline.Library {
	if cfg.Library.Skip {
		return nil
	}

	var progress io.Writer
	if cfg.Verbose {
		progress = os.Stderr
	}

	return library.New(cfg, library.GitCloner{Progress: progress}, toolchain.NewRunner(), logger)
}

// session holds everything one command invocation shares
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	out      io.Writer
	console  *console.Reporter
	registry *prom.Registry
	recorder metrics.Recorder
}

func newSession(cmd *cobra.Command) (*session, error) {
	mode := config.ModeDebug
	if release, _ := cmd.Flags().GetBool("release"); release {
		mode = config.ModeRelease
	}

	cfg, err := config.NewLoader().LoadForBuild(cmd, mode)
	if err != nil {
		return nil, err
	}

	registry := prom.NewRegistry()
	out := cmd.OutOrStdout()

	return &session{
		cfg:      cfg,
		logger:   newLogger(cmd.ErrOrStderr(), cfg.Verbose),
		out:      out,
		console:  console.New(out, cfg.Verbose),
		registry: registry,
		recorder: metrics.NewPrometheusRecorder(registry),
	}, nil
}

// newLogger logs to w; only warnings and errors unless verbose
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// build runs the pipeline once and appends the run to the history
func (s *session) build(ctx context.Context) (*pipeline.Report, error) {
	opts := []pipeline.Option{
		pipeline.WithReporter(s.console),
		pipeline.WithRecorder(s.recorder),
		pipeline.WithLogger(s.logger),
	}

	if lib := newLibrary(s.cfg, s.logger); lib != nil {
		opts = append(opts, pipeline.WithLibrary(lib))
	}

	report, err := pipeline.New(s.cfg, newAdapter(s.cfg), opts...).Run(ctx)
	s.recordRun(report)

	if err != nil {
		return report, &reportedError{err: err}
	}

	return report, nil
}

func (s *session) recordRun(report *pipeline.Report) {
	if report == nil || s.cfg.HistoryFile == "" {
		return
	}

	store, err := history.Open(s.cfg.HistoryFile)
	if err != nil {
		s.logger.Warn("Build history unavailable", logfields.Error(err))
		return
	}

	defer store.Close()

	if err := store.Append(runRecord(report)); err != nil {
		s.logger.Warn("Failed to record build", logfields.Error(err))
	}
}

// runRecord converts a report into its history entry
func runRecord(report *pipeline.Report) history.Run {
	run := history.Run{
		ID:       report.RunID,
		Mode:     report.Mode.String(),
		Started:  report.Started,
		Duration: report.Duration,
		Outcome:  string(report.Outcome),
		Compiled: report.Compiled,
		Cached:   report.Cached,
		Failed:   report.Failed,
	}

	for _, f := range scheduler.Failures(report.Results) {
		run.Failures = append(run.Failures, f.Unit.ID())
	}

	if report.Link != nil {
		run.Output = report.Link.Output
	}

	return run
}

// serve runs the web server over the build directory until ctx is done
func (s *session) serve(ctx context.Context) error {
	if !utils.Exists(s.cfg.BuildDir) {
		return fmt.Errorf("build directory %s does not exist, run a build first", s.cfg.BuildDir)
	}

	opts := server.Options{
		Registry: s.registry,
		Logger:   s.logger,
	}

	if s.cfg.HistoryFile != "" {
		opts.History = history.File(s.cfg.HistoryFile)
	}

	s.console.Serving(s.cfg.ServerAddr, s.cfg.BuildDir, filepath.Base(s.cfg.Output))

	return server.New(s.cfg.ServerAddr, s.cfg.BuildDir, opts).Run(ctx)
}
