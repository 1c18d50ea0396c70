// Package library fetches and builds the external archive linked into every
// build (raylib for the web platform).
package library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/Norgate-AV/incbuild/internal/cache"
	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/discovery"
	"github.com/Norgate-AV/incbuild/internal/logfields"
	"github.com/Norgate-AV/incbuild/internal/staleness"
	"github.com/Norgate-AV/incbuild/internal/toolchain"
	"github.com/Norgate-AV/incbuild/internal/utils"
)

const makeCommand = "make"

// Cloner fetches a repository into dir
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// GitCloner clones with go-git, shallow and single branch
type GitCloner struct {
	Progress io.Writer
}

// Clone performs a depth 1 clone of url into dir
func (g GitCloner) Clone(ctx context.Context, url, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Progress:     g.Progress,
	})

	return err
}

// Maker runs make, satisfied by *toolchain.Runner
type Maker interface {
	Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) toolchain.Outcome
}

// Builder makes sure the library archive exists and is current
type Builder struct {
	lib       config.Library
	cachePath string
	cloner    Cloner
	maker     Maker
	logger    *slog.Logger
}

// New creates a builder for the library of cfg
func New(cfg config.Config, cloner Cloner, maker Maker, logger *slog.Logger) *Builder {
	if cloner == nil {
		cloner = GitCloner{}
	}

	if maker == nil {
		maker = toolchain.NewRunner()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		lib:       cfg.Library,
		cachePath: cfg.LibraryCacheFile(),
		cloner:    cloner,
		maker:     maker,
		logger:    logger,
	}
}

// unit describes the library as a single build unit: the Makefile produces the archive
func (b *Builder) unit() discovery.Unit {
	return discovery.Unit{
		Source: filepath.Join(b.lib.SourceDir, "Makefile"),
		Object: b.lib.Archive,
	}
}

// Ensure clones the library if needed and rebuilds the archive when it is
// missing or out of date. It reports whether the archive was rebuilt, in
// which case the final artifact must be relinked.
func (b *Builder) Ensure(ctx context.Context) (bool, error) {
	if b.lib.Skip {
		return false, nil
	}

	if err := b.fetch(ctx); err != nil {
		return false, err
	}

	store := cache.Load(b.cachePath, b.logger)
	unit := b.unit()

	verdict := staleness.New(store).NeedsRebuild(unit)
	if !verdict.Stale {
		b.logger.Debug("Library archive up to date", logfields.Path(unit.Object))
		return false, nil
	}

	b.logger.Info("Building library", logfields.Path(b.lib.SourceDir), logfields.Reason(string(verdict.Reason)))

	sum, err := cache.Fingerprint(unit.Source)
	if err != nil {
		return false, fmt.Errorf("failed to read library makefile: %w", err)
	}

	out := b.maker.Run(ctx, b.lib.SourceDir, b.lib.Timeout, makeCommand, b.lib.MakeArgs...)
	if !out.OK() {
		return false, fmt.Errorf("failed to build library (%s): %s", out.Status, out.Diagnostic)
	}

	if !utils.Exists(unit.Object) {
		return false, fmt.Errorf("library build did not produce %s", unit.Object)
	}

	store.Record(unit.ID(), sum, unit.Object)
	if err := store.Flush(); err != nil {
		return true, err
	}

	return true, nil
}

// fetch clones the repository when the library sources are absent
func (b *Builder) fetch(ctx context.Context) error {
	if utils.Exists(b.lib.SourceDir) {
		return nil
	}

	if utils.Exists(b.lib.CloneDir) {
		return fmt.Errorf("library directory %s exists but has no %s", b.lib.CloneDir, b.lib.SourceDir)
	}

	if b.lib.Repo == "" {
		return fmt.Errorf("library sources missing at %s and no repository configured", b.lib.SourceDir)
	}

	b.logger.Info("Cloning library", logfields.Repository(b.lib.Repo), logfields.Path(b.lib.CloneDir))

	if err := os.MkdirAll(filepath.Dir(b.lib.CloneDir), 0o755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	if err := b.cloner.Clone(ctx, b.lib.Repo, b.lib.CloneDir); err != nil {
		// Leave no half-cloned tree behind for the next run to trip over
		os.RemoveAll(b.lib.CloneDir)
		return fmt.Errorf("failed to clone %s: %w", b.lib.Repo, err)
	}

	if !utils.Exists(b.lib.SourceDir) {
		return fmt.Errorf("cloned repository has no %s", b.lib.SourceDir)
	}

	return nil
}
