package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/incbuild/internal/history"
	"github.com/Norgate-AV/incbuild/internal/metrics"
)

type fakeRuns struct {
	runs []history.Run
	err  error
	got  int
}

func (f *fakeRuns) List(limit int) ([]history.Run, error) {
	f.got = limit
	return f.runs, f.err
}

func buildDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bulang.html"), []byte("<html>bulang</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bulang.wasm"), []byte("\x00asm"), 0o644))

	return dir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestServer_StaticFiles(t *testing.T) {
	h := New(":0", buildDir(t), Options{}).Handler()

	rec := get(t, h, "/bulang.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>bulang</html>", rec.Body.String())
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = get(t, h, "/bulang.wasm")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/wasm", rec.Header().Get("Content-Type"))

	rec = get(t, h, "/missing.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Health(t *testing.T) {
	rec := get(t, New(":0", t.TempDir(), Options{}).Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	reg := prom.NewRegistry()
	metrics.NewPrometheusRecorder(reg).IncBuildOutcome(metrics.BuildSuccess)

	rec := get(t, New(":0", t.TempDir(), Options{Registry: reg}).Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "incbuild_build_outcomes_total")

	// Without a registry /metrics is just a missing file
	rec = get(t, New(":0", t.TempDir(), Options{}).Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Runs(t *testing.T) {
	runs := &fakeRuns{runs: []history.Run{{ID: "abc", Outcome: "success"}}}
	h := New(":0", t.TempDir(), Options{History: runs}).Handler()

	rec := get(t, h, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.got)

	var got []history.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)

	rec = get(t, h, "/api/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRunLimit, runs.got)

	rec = get(t, h, "/api/runs?limit=nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	runs.err = errors.New("db closed")
	rec = get(t, h, "/api/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(ln.Addr().String(), buildDir(t), Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/bulang.html")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "<html>bulang</html>", string(body))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_RunListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = New(ln.Addr().String(), t.TempDir(), Options{}).Run(context.Background())
	assert.Error(t, err)
}
