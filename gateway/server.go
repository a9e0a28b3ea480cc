// Package gateway exposes the pipeline over HTTP: recent items and
// statistics as JSON, liveness and Prometheus endpoints, and the /ws
// streaming subscription.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yanzhidev/windsurf-rtnews/broadcast"
	"github.com/yanzhidev/windsurf-rtnews/errors"
	"github.com/yanzhidev/windsurf-rtnews/item"
	"github.com/yanzhidev/windsurf-rtnews/metric"
	"github.com/yanzhidev/windsurf-rtnews/stream"
)

const defaultRecentLimit = 10

// Pipeline is the read-side view of the running pipeline.
type Pipeline interface {
	Snapshot() stream.Snapshot
	Recent(k int) []item.Item
}

// Config holds the gateway server settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	SendTimeout     time.Duration // per-message write deadline for /ws subscribers
}

// DefaultConfig returns the production gateway defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "0.0.0.0:8000",
		ShutdownTimeout: 10 * time.Second,
		SendTimeout:     broadcast.DefaultSendTimeout,
	}
}

// Server serves the HTTP API and upgrades /ws connections into broadcast
// subscribers.
type Server struct {
	cfg      Config
	pipeline Pipeline
	mgr      *broadcast.Manager
	registry *metric.MetricsRegistry
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	srv     *http.Server
}

// New creates a gateway Server. The metrics registry may be nil; the
// /metrics endpoint then returns 404.
func New(cfg Config, pipeline Pipeline, mgr *broadcast.Manager,
	registry *metric.MetricsRegistry, logger *slog.Logger) *Server {

	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		mgr:      mgr,
		registry: registry,
		logger:   logger.With("component", "gateway"),
	}
}

// Handler returns the gateway's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/recent", s.handleRecent)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.registry != nil {
		mux.Handle("GET /metrics", s.registry.Handler())
	}
	return mux
}

// Start begins serving in a goroutine.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.Wrap(errors.ErrAlreadyStarted, "Server", "Start", "start")
	}

	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.started = true

	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway server failed", "error", err)
		}
	}()
	return nil
}

// Stop drains the HTTP server and closes all live subscribers.
func (s *Server) Stop(_ time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrNotStarted, "Server", "Stop", "stop")
	}
	s.started = false
	srv := s.srv
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	s.mgr.CloseAll()
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown")
	}
	s.logger.Info("gateway stopped")
	return nil
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items := s.pipeline.Recent(limit)
	if items == nil {
		items = []item.Item{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"news":  items,
		"count": len(items),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.Snapshot())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"active_connections": s.mgr.ActiveCount(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
