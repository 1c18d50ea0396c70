// Package server serves the build directory over HTTP for local testing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Norgate-AV/incbuild/internal/history"
	"github.com/Norgate-AV/incbuild/internal/logfields"
	"github.com/Norgate-AV/incbuild/internal/metrics"
)

const (
	shutdownTimeout = 5 * time.Second
	defaultRunLimit = 20
)

// RunLister provides recent build runs
type RunLister interface {
	List(limit int) ([]history.Run, error)
}

// Options configures the optional routes
type Options struct {
	// Registry enables /metrics when set
	Registry *prom.Registry
	// History enables /api/runs when set
	History RunLister
	Logger  *slog.Logger
}

// Server serves static files from the build directory
type Server struct {
	Addr   string
	dir    string
	router *chi.Mux
	opts   Options
	logger *slog.Logger
}

// New creates a server for dir listening on addr
func New(addr, dir string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Addr:   addr,
		dir:    dir,
		router: chi.NewRouter(),
		opts:   opts,
		logger: logger,
	}

	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/health", s.handleHealth)

	if s.opts.Registry != nil {
		s.router.Handle("/metrics", metrics.HTTPHandler(s.opts.Registry))
	}

	if s.opts.History != nil {
		s.router.Get("/api/runs", s.handleRuns)
	}

	files := http.FileServer(http.Dir(s.dir))
	s.router.Handle("/*", noCache(files))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("Serving build directory", logfields.Path(s.dir), slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		limit = n
	}

	runs, err := s.opts.History.List(limit)
	if err != nil {
		s.logger.Error("Failed to list runs", logfields.Error(err))
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	if runs == nil {
		runs = []history.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runs)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("HTTP request",
			slog.String("method", r.Method),
			logfields.Path(r.URL.Path),
			slog.Int("status", ww.Status()),
			logfields.Duration(time.Since(start)))
	})
}

// noCache keeps browsers from holding on to stale build output
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}
