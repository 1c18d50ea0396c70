package toolchain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/incbuild/internal/config"
)

// mockCommander implements Commander interface for testing
type mockCommander struct {
	runFunc func() ([]byte, error)
}

func (m *mockCommander) CombinedOutput() ([]byte, error) {
	return m.runFunc()
}

type call struct {
	dir  string
	name string
	args []string
}

// recordingRunner returns a runner whose commands are produced by fn, and
// the list of calls it received
func recordingRunner(fn func(ctx context.Context, name string, args []string) ([]byte, error)) (*Runner, *[]call) {
	var mu sync.Mutex
	calls := &[]call{}

	r := &Runner{
		execCommand: func(ctx context.Context, dir, name string, args ...string) Commander {
			mu.Lock()
			*calls = append(*calls, call{dir: dir, name: name, args: args})
			mu.Unlock()

			return &mockCommander{runFunc: func() ([]byte, error) { return fn(ctx, name, args) }}
		},
	}

	return r, calls
}

func testConfig(dir string) config.Config {
	return config.Config{
		Compiler:       "em++",
		ProjectDir:     dir,
		CompileTimeout: time.Second,
		LinkTimeout:    time.Second,
	}
}

func TestEmscripten_CompileArgs(t *testing.T) {
	tests := []struct {
		name     string
		req      CompileRequest
		wantArgs []string
	}{
		{
			name: "flags, includes, source and object",
			req: CompileRequest{
				Source:      "/p/src/main.cpp",
				Object:      "/p/build/obj/debug/main.o",
				IncludeDirs: []string{"/p/include", "/p/external/raylib/src"},
				Flags:       []string{"-std=c++17", "-O2"},
			},
			wantArgs: []string{
				"-std=c++17", "-O2",
				"-I/p/include", "-I/p/external/raylib/src",
				"-c", "/p/src/main.cpp",
				"-o", "/p/build/obj/debug/main.o",
			},
		},
		{
			name: "empty include dir is skipped",
			req: CompileRequest{
				Source:      "a.cpp",
				Object:      "a.o",
				IncludeDirs: []string{"", "inc"},
			},
			wantArgs: []string{"-Iinc", "-c", "a.cpp", "-o", "a.o"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmscripten(testConfig(""), nil)
			assert.Equal(t, tt.wantArgs, e.CompileArgs(tt.req))
		})
	}
}

func TestEmscripten_LinkArgs(t *testing.T) {
	e := NewEmscripten(testConfig(""), nil)
	args := e.LinkArgs(LinkRequest{
		Objects:   []string{"a.o", "b.o"},
		Libraries: []string{"libraylib.web.a"},
		Flags:     []string{"-O3", "-s", "USE_GLFW=3"},
		Output:    "build/bulang.html",
	})

	assert.Equal(t, []string{"a.o", "b.o", "libraylib.web.a", "-O3", "-s", "USE_GLFW=3", "-o", "build/bulang.html"}, args)
}

func TestEmscripten_Compile_Success(t *testing.T) {
	dir := t.TempDir()
	obj := filepath.Join(dir, "build", "obj", "main.o")

	runner, calls := recordingRunner(func(_ context.Context, _ string, args []string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte("obj"), 0o644)
	})

	e := NewEmscripten(testConfig(dir), runner)
	out := e.Compile(context.Background(), CompileRequest{Source: "main.cpp", Object: obj})

	require.True(t, out.OK(), out.Diagnostic)
	assert.Equal(t, obj, out.Path)
	require.Len(t, *calls, 1)
	assert.Equal(t, "em++", (*calls)[0].name)
	assert.Equal(t, dir, (*calls)[0].dir)
}

func TestEmscripten_Compile_Failure(t *testing.T) {
	dir := t.TempDir()

	runner, _ := recordingRunner(func(context.Context, string, []string) ([]byte, error) {
		return []byte("main.cpp:3:1: error: expected ';'\n"), errors.New("exit status 1")
	})

	e := NewEmscripten(testConfig(dir), runner)
	out := e.Compile(context.Background(), CompileRequest{Source: "main.cpp", Object: filepath.Join(dir, "main.o")})

	assert.Equal(t, Failure, out.Status)
	assert.Contains(t, out.Diagnostic, "em++ failed")
	assert.Contains(t, out.Diagnostic, "expected ';'")
	assert.Empty(t, out.Path)
}

func TestEmscripten_Compile_NoObjectProduced(t *testing.T) {
	dir := t.TempDir()

	runner, _ := recordingRunner(func(context.Context, string, []string) ([]byte, error) {
		return nil, nil
	})

	e := NewEmscripten(testConfig(dir), runner)
	out := e.Compile(context.Background(), CompileRequest{Source: "main.cpp", Object: filepath.Join(dir, "main.o")})

	assert.Equal(t, Failure, out.Status)
	assert.Contains(t, out.Diagnostic, "was not produced")
}

func TestEmscripten_Compile_Timeout(t *testing.T) {
	dir := t.TempDir()

	runner, _ := recordingRunner(func(ctx context.Context, _ string, _ []string) ([]byte, error) {
		<-ctx.Done()
		return []byte("partial"), ctx.Err()
	})

	cfg := testConfig(dir)
	cfg.CompileTimeout = 20 * time.Millisecond

	e := NewEmscripten(cfg, runner)
	out := e.Compile(context.Background(), CompileRequest{Source: "main.cpp", Object: filepath.Join(dir, "main.o")})

	assert.Equal(t, Timeout, out.Status)
	assert.Contains(t, out.Diagnostic, "timed out after 20ms")
	assert.Contains(t, out.Diagnostic, "partial")
}

func TestEmscripten_Link(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "build", "bulang.html")

	runner, calls := recordingRunner(func(_ context.Context, _ string, args []string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte("<html>"), 0o644)
	})

	e := NewEmscripten(testConfig(dir), runner)
	out := e.Link(context.Background(), LinkRequest{Objects: []string{"a.o"}, Output: output})

	require.True(t, out.OK(), out.Diagnostic)
	assert.Equal(t, output, out.Path)
	assert.Equal(t, []string{"a.o", "-o", output}, (*calls)[0].args)
}

func TestEmscripten_Probe(t *testing.T) {
	runner, calls := recordingRunner(func(context.Context, string, []string) ([]byte, error) {
		return []byte("emcc (Emscripten gcc/clang-like replacement) 3.1.64\nclang version 19\n"), nil
	})

	e := NewEmscripten(testConfig(""), runner)
	version, err := e.Probe(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "emcc (Emscripten gcc/clang-like replacement) 3.1.64", version)
	assert.Equal(t, []string{"--version"}, (*calls)[0].args)

	failing, _ := recordingRunner(func(context.Context, string, []string) ([]byte, error) {
		return nil, exec.ErrNotFound
	})

	_, err = NewEmscripten(testConfig(""), failing).Probe(context.Background())
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestRunner_RealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	r := NewRunner()

	t.Run("success", func(t *testing.T) {
		out := r.Run(context.Background(), "", time.Second*5, "sh", "-c", "exit 0")
		assert.Equal(t, Success, out.Status)
	})

	t.Run("exit code is described", func(t *testing.T) {
		out := r.Run(context.Background(), "", time.Second*5, "sh", "-c", "echo boom >&2; exit 127")
		assert.Equal(t, Failure, out.Status)
		assert.Contains(t, out.Diagnostic, "exit code 127")
		assert.Contains(t, out.Diagnostic, "Command not found")
		assert.Contains(t, out.Diagnostic, "boom")
	})

	t.Run("timeout is distinct from failure", func(t *testing.T) {
		start := time.Now()
		out := r.Run(context.Background(), "", 100*time.Millisecond, "sh", "-c", "sleep 5")
		assert.Equal(t, Timeout, out.Status)
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("missing binary", func(t *testing.T) {
		out := r.Run(context.Background(), "", time.Second, "definitely-not-a-real-compiler")
		assert.Equal(t, Failure, out.Status)
		assert.Contains(t, out.Diagnostic, "definitely-not-a-real-compiler failed")
	})
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "failure", Failure.String())
	assert.Equal(t, "timeout", Timeout.String())
	assert.Equal(t, "unknown", Status(9).String())
}
