package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/utils"
)

// probeTimeout bounds the compiler version check
const probeTimeout = 5 * time.Second

// CompileRequest describes one compile invocation
type CompileRequest struct {
	Source      string
	Object      string
	IncludeDirs []string
	Flags       []string
}

// LinkRequest describes the link invocation. Objects must already be in
// their final order.
type LinkRequest struct {
	Objects   []string
	Libraries []string
	Flags     []string
	Output    string
}

// Adapter is the boundary between the build core and the external toolchain
type Adapter interface {
	Compile(ctx context.Context, req CompileRequest) Outcome
	Link(ctx context.Context, req LinkRequest) Outcome
}

// Emscripten drives em++ (or any driver with the same command line)
type Emscripten struct {
	compiler       string
	dir            string
	compileTimeout time.Duration
	linkTimeout    time.Duration
	runner         *Runner
}

// NewEmscripten creates an adapter for the configured compiler
func NewEmscripten(cfg config.Config, runner *Runner) *Emscripten {
	if runner == nil {
		runner = NewRunner()
	}

	return &Emscripten{
		compiler:       cfg.Compiler,
		dir:            cfg.ProjectDir,
		compileTimeout: cfg.CompileTimeout,
		linkTimeout:    cfg.LinkTimeout,
		runner:         runner,
	}
}

// CompileArgs builds the command arguments for a compile
func (e *Emscripten) CompileArgs(req CompileRequest) []string {
	args := make([]string, 0, len(req.Flags)+len(req.IncludeDirs)+4)
	args = append(args, req.Flags...)

	for _, dir := range req.IncludeDirs {
		if dir != "" {
			args = append(args, "-I"+dir)
		}
	}

	return append(args, "-c", req.Source, "-o", req.Object)
}

// Compile compiles one source into its object file
func (e *Emscripten) Compile(ctx context.Context, req CompileRequest) Outcome {
	if err := os.MkdirAll(filepath.Dir(req.Object), 0o755); err != nil {
		return Outcome{Status: Failure, Diagnostic: fmt.Sprintf("failed to create object directory: %v", err)}
	}

	out := e.runner.Run(ctx, e.dir, e.compileTimeout, e.compiler, e.CompileArgs(req)...)
	return produced(out, req.Object)
}

// LinkArgs builds the command arguments for the link
func (e *Emscripten) LinkArgs(req LinkRequest) []string {
	args := make([]string, 0, len(req.Objects)+len(req.Libraries)+len(req.Flags)+2)
	args = append(args, req.Objects...)
	args = append(args, req.Libraries...)
	args = append(args, req.Flags...)

	return append(args, "-o", req.Output)
}

// Link links the ordered objects and libraries into the final artifact
func (e *Emscripten) Link(ctx context.Context, req LinkRequest) Outcome {
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return Outcome{Status: Failure, Diagnostic: fmt.Sprintf("failed to create output directory: %v", err)}
	}

	out := e.runner.Run(ctx, e.dir, e.linkTimeout, e.compiler, e.LinkArgs(req)...)
	return produced(out, req.Output)
}

// Probe checks the compiler is callable and returns its version line
func (e *Emscripten) Probe(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := e.runner.execCommand(runCtx, e.dir, e.compiler, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("compiler %s not usable: %w", e.compiler, err)
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// produced marks a successful outcome as failed when the artifact is missing
func produced(out Outcome, path string) Outcome {
	if !out.OK() {
		return out
	}

	if !utils.Exists(path) {
		out.Status = Failure
		out.Diagnostic = fmt.Sprintf("compiler reported success but %s was not produced", path)
		return out
	}

	out.Path = path
	return out
}
