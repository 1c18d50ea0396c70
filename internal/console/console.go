// Package console renders build progress for a terminal.
package console

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"

	"github.com/Norgate-AV/incbuild/internal/linker"
	"github.com/Norgate-AV/incbuild/internal/pipeline"
	"github.com/Norgate-AV/incbuild/internal/scheduler"
	"github.com/Norgate-AV/incbuild/internal/utils"
)

var stageTitles = map[string]string{
	pipeline.StageToolchain: "Checking toolchain",
	pipeline.StageLibrary:   "Preparing library",
	pipeline.StageDiscover:  "Discovering sources",
	pipeline.StageCompile:   "Compiling",
	pipeline.StageLink:      "Linking",
}

// Reporter prints pipeline events. Cached units are only listed when verbose.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// New creates a reporter writing to w
func New(w io.Writer, verbose bool) *Reporter {
	return &Reporter{w: w, verbose: verbose}
}

func (r *Reporter) printf(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, a...)
}

// Stage prints a section banner
func (r *Reporter) Stage(name string) {
	title, ok := stageTitles[name]
	if !ok {
		title = name
	}

	r.printf("%s %s\n", color.Info.Sprint("==>"), color.Bold.Sprint(title))
}

// UnitResult prints one unit line
func (r *Reporter) UnitResult(res scheduler.Result) {
	name := filepath.Base(res.Unit.Source)

	switch res.Status {
	case scheduler.Compiled:
		r.printf("  %s %s %s\n", color.Success.Sprint("✓"), name, color.Gray.Sprintf("(%s)", round(res.Duration)))
	case scheduler.Cached:
		if r.verbose {
			r.printf("  %s %s %s\n", color.Gray.Sprint("·"), name, color.Gray.Sprint("(cached)"))
		}
	case scheduler.Failed:
		label := "failed"
		if res.Timeout {
			label = "timed out"
		}

		r.printf("  %s %s %s\n", color.Danger.Sprint("✗"), name, color.Danger.Sprintf("(%s)", label))
	}
}

// Finish prints the summary of a run
func (r *Reporter) Finish(report *pipeline.Report, err error) {
	if report == nil {
		return
	}

	if len(report.Results) > 0 {
		r.printf("\n%s compiled, %s cached, %s failed\n",
			color.Success.Sprint(report.Compiled),
			color.Gray.Sprint(report.Cached),
			failedCount(report.Failed))
	}

	var compileErrs *pipeline.CompileErrors
	var linkErr *linker.LinkError

	switch {
	case errors.As(err, &compileErrs):
		r.printf("\n%s\n", color.Danger.Sprint("Compilation errors:"))
		for _, f := range compileErrs.Failures {
			r.printf("\n%s\n%s\n", color.Bold.Sprint(f.Unit.ID()), indent(f.Diagnostic))
		}
	case errors.As(err, &linkErr):
		r.printf("\n%s\n%s\n", color.Danger.Sprint(linkErr.Error()), indent(linkErr.Diagnostic))
	}

	if err != nil {
		r.printf("\n%s %s\n", color.Danger.Sprint("Build failed:"), err)
		return
	}

	if report.Link != nil && report.Link.Skipped {
		r.printf("%s\n", color.Gray.Sprint("Output up to date, link skipped"))
	}

	if len(report.Artifacts) > 0 {
		r.printf("\nOutput files:\n")
		for _, a := range report.Artifacts {
			r.printf("  %-24s %s\n", filepath.Base(a.Path), color.Gray.Sprint(utils.FormatSize(a.Size)))
		}
	}

	r.printf("\n%s in %s\n", color.Success.Sprint("Build succeeded"), round(report.Duration))
}

// Serving announces the local server and, when page is set, the URL of the built page
func (r *Reporter) Serving(addr, dir, page string) {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}

	r.printf("%s Serving %s at %s\n", color.Info.Sprint("==>"), dir, color.Bold.Sprintf("http://%s/", host))
	if page != "" {
		r.printf("    Open %s\n", color.Bold.Sprintf("http://%s/%s", host, page))
	}

	r.printf("%s\n", color.Gray.Sprint("Press Ctrl+C to stop"))
}

// Cleaned confirms a clean
func (r *Reporter) Cleaned(dir string) {
	r.printf("%s Removed %s\n", color.Success.Sprint("✓"), dir)
}

func failedCount(n int) string {
	if n == 0 {
		return color.Gray.Sprint(n)
	}

	return color.Danger.Sprint(n)
}

func indent(s string) string {
	if s == "" {
		return ""
	}

	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}

	return strings.Join(lines, "\n")
}

func round(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}

	return d.Round(10 * time.Millisecond)
}
