// Package linker combines the resolved objects of a batch into the final artifact.
package linker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/logfields"
	"github.com/Norgate-AV/incbuild/internal/metrics"
	"github.com/Norgate-AV/incbuild/internal/scheduler"
	"github.com/Norgate-AV/incbuild/internal/toolchain"
	"github.com/Norgate-AV/incbuild/internal/utils"
)

// ErrUnresolvedUnits is returned when asked to link a batch containing failures
var ErrUnresolvedUnits = errors.New("cannot link a batch with failed units")

// LinkError reports a failed or timed out link invocation
type LinkError struct {
	Output     string
	Timeout    bool
	Diagnostic string
}

func (e *LinkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("link of %s timed out", e.Output)
	}

	return fmt.Sprintf("link of %s failed", e.Output)
}

// Linker runs the link invocation
type Linker interface {
	Link(ctx context.Context, req toolchain.LinkRequest) toolchain.Outcome
}

// Input is everything the aggregator needs from a batch
type Input struct {
	Results   []scheduler.Result
	Libraries []string
	// Force a link even when nothing was compiled, e.g. after a library rebuild
	Force bool
}

// Result describes the link step of a run
type Result struct {
	Output string
	// Objects in the order they were passed to the linker
	Objects []string
	// Skipped is true when the existing artifact was reused
	Skipped  bool
	Duration time.Duration
}

// manifest records what the artifact on disk was linked from
type manifest struct {
	Objects   []string `json:"objects"`
	Libraries []string `json:"libraries"`
}

// Aggregator performs the single link step of a build
type Aggregator struct {
	linker   Linker
	output   string
	manifest string
	flags    []string
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates an aggregator producing cfg.Output
func New(cfg config.Config, linker Linker, recorder metrics.Recorder, logger *slog.Logger) *Aggregator {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		linker:   linker,
		output:   cfg.Output,
		manifest: cfg.LinkManifestFile(),
		flags:    cfg.LinkArgs(),
		recorder: recorder,
		logger:   logger,
	}
}

// Link links every object of the batch. Objects are ordered by source
// identity so the invocation is identical no matter which compile finished
// first.
func (a *Aggregator) Link(ctx context.Context, in Input) (Result, error) {
	if n := scheduler.Count(in.Results, scheduler.Failed); n > 0 {
		return Result{}, fmt.Errorf("%w: %d failed", ErrUnresolvedUnits, n)
	}

	res := Result{
		Output:  a.output,
		Objects: Objects(in.Results),
	}

	inputs := manifest{Objects: res.Objects, Libraries: in.Libraries}

	compiled := scheduler.Count(in.Results, scheduler.Compiled)
	if compiled == 0 && !in.Force && a.upToDate(inputs) {
		a.logger.Debug("Nothing compiled, reusing artifact", logfields.Path(a.output))
		res.Skipped = true
		return res, nil
	}

	// Until this link succeeds the artifact on disk no longer matches any manifest
	if err := os.Remove(a.manifest); err != nil && !os.IsNotExist(err) {
		return res, fmt.Errorf("failed to remove link manifest: %w", err)
	}

	out := a.linker.Link(ctx, toolchain.LinkRequest{
		Objects:   res.Objects,
		Libraries: in.Libraries,
		Flags:     a.flags,
		Output:    a.output,
	})

	res.Duration = out.Duration
	a.recorder.ObserveLinkDuration(out.Duration, out.OK())

	if !out.OK() {
		return res, &LinkError{
			Output:     a.output,
			Timeout:    out.Status == toolchain.Timeout,
			Diagnostic: out.Diagnostic,
		}
	}

	if err := a.writeManifest(inputs); err != nil {
		a.logger.Warn("Failed to record link inputs", logfields.Path(a.manifest), logfields.Error(err))
	}

	a.logger.Info("Linked", logfields.Path(a.output), logfields.Count(len(res.Objects)), logfields.Duration(out.Duration))

	return res, nil
}

// upToDate reports whether the artifact on disk was linked from exactly
// these inputs and is at least as new as each of them.
func (a *Aggregator) upToDate(inputs manifest) bool {
	outTime, ok := utils.ModTime(a.output)
	if !ok {
		return false
	}

	prev, err := a.readManifest()
	if err != nil {
		return false
	}

	if !slices.Equal(prev.Objects, inputs.Objects) || !slices.Equal(prev.Libraries, inputs.Libraries) {
		return false
	}

	for _, path := range append(slices.Clone(inputs.Objects), inputs.Libraries...) {
		t, ok := utils.ModTime(path)
		if !ok || t.After(outTime) {
			return false
		}
	}

	return true
}

func (a *Aggregator) readManifest() (manifest, error) {
	var m manifest

	data, err := os.ReadFile(a.manifest)
	if err != nil {
		return m, err
	}

	err = json.Unmarshal(data, &m)
	return m, err
}

func (a *Aggregator) writeManifest(m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(a.manifest, append(data, '\n'), 0o644)
}

// Objects returns the object paths of results sorted by source identity
func Objects(results []scheduler.Result) []string {
	sorted := make([]scheduler.Result, len(results))
	copy(sorted, results)

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Unit.ID() < sorted[j].Unit.ID() })

	objects := make([]string, 0, len(sorted))
	for _, r := range sorted {
		objects = append(objects, r.Output)
	}

	return objects
}

// Artifact is one file produced by the link
type Artifact struct {
	Path string
	Size int64
}

// artifactExts are the files the web linker writes next to each other
var artifactExts = []string{".html", ".js", ".wasm", ".data"}

// Artifacts lists the files produced alongside output that exist on disk
func Artifacts(output string) []Artifact {
	base := strings.TrimSuffix(output, ".html")

	var artifacts []Artifact
	for _, ext := range artifactExts {
		path := base + ext

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}

		artifacts = append(artifacts, Artifact{Path: path, Size: info.Size()})
	}

	return artifacts
}
