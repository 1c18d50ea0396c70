package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Norgate-AV/incbuild/internal/scheduler"
)

// ErrDiscoveryEmpty is returned when the source tree holds no units
var ErrDiscoveryEmpty = errors.New("no compilation units found")

// CompileErrors collects every failed unit of a batch
type CompileErrors struct {
	Failures []scheduler.Result
}

func newCompileErrors(failed []scheduler.Result) *CompileErrors {
	sorted := make([]scheduler.Result, len(failed))
	copy(sorted, failed)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Unit.ID() < sorted[j].Unit.ID() })

	return &CompileErrors{Failures: sorted}
}

// Timeouts returns how many of the failures were compile timeouts
func (e *CompileErrors) Timeouts() int {
	n := 0
	for _, f := range e.Failures {
		if f.Timeout {
			n++
		}
	}

	return n
}

func (e *CompileErrors) Error() string {
	msg := fmt.Sprintf("%d unit(s) failed to compile", len(e.Failures))
	if n := e.Timeouts(); n > 0 {
		msg += fmt.Sprintf(" (%d timed out)", n)
	}

	return msg
}
