package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/discovery"
	"github.com/Norgate-AV/incbuild/internal/staleness"
	"github.com/Norgate-AV/incbuild/internal/toolchain"
)

// staticOracle reports every unit in fresh as up to date
type staticOracle struct {
	fresh map[string]bool
}

func (o staticOracle) NeedsRebuild(u discovery.Unit) staleness.Verdict {
	if o.fresh[u.ID()] {
		return staleness.Verdict{Reason: staleness.ReasonUpToDate}
	}

	return staleness.Verdict{Stale: true, Reason: staleness.ReasonMissingOutput}
}

type memStore struct {
	mu      sync.Mutex
	records map[string][2]string
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string][2]string)}
}

func (m *memStore) Record(id, fingerprint, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = [2]string{fingerprint, output}
}

// fakeCompiler tracks concurrency and fails any source whose base name is in failing
type fakeCompiler struct {
	delay    time.Duration
	failing  map[string]toolchain.Status
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeCompiler) Compile(_ context.Context, req toolchain.CompileRequest) toolchain.Outcome {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	time.Sleep(f.delay)

	if status, ok := f.failing[filepath.Base(req.Source)]; ok {
		return toolchain.Outcome{Status: status, Diagnostic: "error in " + filepath.Base(req.Source)}
	}

	return toolchain.Outcome{Status: toolchain.Success, Path: req.Object, Duration: f.delay}
}

func makeUnits(n int) []discovery.Unit {
	units := make([]discovery.Unit, n)
	for i := range units {
		name := fmt.Sprintf("unit%02d", i)
		units[i] = discovery.Unit{
			Source: filepath.Join("/src", name+".cpp"),
			Object: filepath.Join("/obj", name+".o"),
		}
	}

	return units
}

func newTestScheduler(jobs int, oracle Oracle, store Store, compiler Compiler, opts ...Option) *Scheduler {
	s := New(config.Config{Jobs: jobs, CompileFlags: []string{"-O2"}, Library: config.Library{Skip: true}}, oracle, store, compiler, opts...)
	s.fingerprint = func(path string) (string, error) { return "sum:" + filepath.Base(path), nil }
	return s
}

func TestScheduler_AllStaleCompiled(t *testing.T) {
	store := newMemStore()
	compiler := &fakeCompiler{}
	s := newTestScheduler(4, staticOracle{}, store, compiler)

	results := s.Run(context.Background(), makeUnits(6))

	require.Len(t, results, 6)
	assert.Equal(t, 6, Count(results, Compiled))
	assert.Equal(t, int32(6), compiler.calls.Load())
	assert.Len(t, store.records, 6)
	assert.Equal(t, [2]string{"sum:unit00.cpp", "/obj/unit00.o"}, store.records["/src/unit00.cpp"])
}

func TestScheduler_UpToDateUnitsAreNotSubmitted(t *testing.T) {
	units := makeUnits(4)
	fresh := map[string]bool{}
	for _, u := range units {
		fresh[u.ID()] = true
	}

	store := newMemStore()
	compiler := &fakeCompiler{}
	s := newTestScheduler(2, staticOracle{fresh: fresh}, store, compiler)

	results := s.Run(context.Background(), units)

	require.Len(t, results, 4)
	assert.Equal(t, 4, Count(results, Cached))
	assert.Zero(t, compiler.calls.Load())
	assert.Empty(t, store.records)

	for _, r := range results {
		assert.Equal(t, r.Unit.Object, r.Output)
		assert.Equal(t, staleness.ReasonUpToDate, r.Reason)
	}
}

func TestScheduler_BoundedConcurrency(t *testing.T) {
	compiler := &fakeCompiler{delay: 20 * time.Millisecond}
	s := newTestScheduler(3, staticOracle{}, newMemStore(), compiler)

	results := s.Run(context.Background(), makeUnits(10))

	assert.Equal(t, 10, Count(results, Compiled))
	assert.LessOrEqual(t, compiler.maxSeen.Load(), int32(3))
	assert.Positive(t, compiler.maxSeen.Load())
}

func TestScheduler_PartialFailureDoesNotCancelSiblings(t *testing.T) {
	store := newMemStore()
	compiler := &fakeCompiler{
		delay:   5 * time.Millisecond,
		failing: map[string]toolchain.Status{"unit02.cpp": toolchain.Failure},
	}
	s := newTestScheduler(2, staticOracle{}, store, compiler)

	results := s.Run(context.Background(), makeUnits(5))

	require.Len(t, results, 5)
	assert.Equal(t, 4, Count(results, Compiled))

	failed := Failures(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "/src/unit02.cpp", failed[0].Unit.ID())
	assert.Equal(t, "error in unit02.cpp", failed[0].Diagnostic)
	assert.False(t, failed[0].Timeout)
	assert.Empty(t, failed[0].Output)

	assert.Equal(t, int32(5), compiler.calls.Load(), "every submitted task runs")
	assert.Len(t, store.records, 4)
	assert.NotContains(t, store.records, "/src/unit02.cpp")
}

func TestScheduler_TimeoutIsDistinct(t *testing.T) {
	compiler := &fakeCompiler{failing: map[string]toolchain.Status{
		"unit00.cpp": toolchain.Timeout,
		"unit01.cpp": toolchain.Failure,
	}}
	s := newTestScheduler(2, staticOracle{}, newMemStore(), compiler)

	results := s.Run(context.Background(), makeUnits(2))

	failed := Failures(results)
	require.Len(t, failed, 2)

	byID := map[string]Result{}
	for _, r := range failed {
		byID[r.Unit.ID()] = r
	}

	assert.True(t, byID["/src/unit00.cpp"].Timeout)
	assert.False(t, byID["/src/unit01.cpp"].Timeout)
}

func TestScheduler_UnreadableSourceFails(t *testing.T) {
	compiler := &fakeCompiler{}
	s := newTestScheduler(1, staticOracle{}, newMemStore(), compiler)
	s.fingerprint = func(string) (string, error) { return "", fmt.Errorf("permission denied") }

	results := s.Run(context.Background(), makeUnits(1))

	require.Len(t, results, 1)
	assert.Equal(t, Failed, results[0].Status)
	assert.True(t, strings.HasPrefix(results[0].Diagnostic, "failed to read source"))
	assert.Zero(t, compiler.calls.Load())
}

func TestScheduler_ResultHookSeesEveryResult(t *testing.T) {
	units := makeUnits(5)
	fresh := map[string]bool{units[0].ID(): true}

	var seen []Result
	hook := WithResultHook(func(r Result) { seen = append(seen, r) })
	s := newTestScheduler(3, staticOracle{fresh: fresh}, newMemStore(), &fakeCompiler{delay: time.Millisecond}, hook)

	results := s.Run(context.Background(), units)

	assert.ElementsMatch(t, results, seen)
	assert.Equal(t, 1, Count(seen, Cached))
	assert.Equal(t, 4, Count(seen, Compiled))
}

func TestScheduler_EmptyBatch(t *testing.T) {
	s := newTestScheduler(2, staticOracle{}, newMemStore(), &fakeCompiler{})
	assert.Empty(t, s.Run(context.Background(), nil))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "cached", Cached.String())
	assert.Equal(t, "compiled", Compiled.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", Status(7).String())
}

func TestScheduler_LogsStaleUnitObject(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := newTestScheduler(1, staticOracle{}, newMemStore(), &fakeCompiler{}, WithLogger(logger))
	s.Run(context.Background(), makeUnits(1))

	out := buf.String()
	assert.Contains(t, out, "Unit is stale")
	assert.Contains(t, out, "object=/obj/unit00.o")
	assert.Contains(t, out, "reason=missing-output")
}
