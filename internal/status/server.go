package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetops/go-bot-launcher/internal/stats"
)

// DefaultTailLines is how many lines /logs/{name} returns without ?n=.
const DefaultTailLines = 200

// BotStatus is the JSON payload served at /status.
type BotStatus struct {
	Running       bool          `json:"running"`
	State         string        `json:"state"`
	PID           int           `json:"pid"`
	Interpreter   string        `json:"interpreter"`
	PythonVersion string        `json:"python_version,omitempty"`
	Uptime        string        `json:"uptime"`
	Restarts      int           `json:"restarts"`
	History       stats.Summary `json:"history"`
	RecentStdout  []string      `json:"recent_stdout,omitempty"`
	RecentStderr  []string      `json:"recent_stderr,omitempty"`
}

// Source provides the live bot status.
type Source interface {
	Status() BotStatus
}

// Server provides HTTP endpoints for health checks, bot status, log tails,
// and Prometheus metrics.
type Server struct {
	addr   string
	server *http.Server
	logger *slog.Logger

	source Source
	logs   map[string]string // name -> absolute path
}

// NewServer creates a new status server. logs maps public log names to
// absolute paths; only those names are served. gatherer may be nil to use
// the default Prometheus gatherer.
func NewServer(addr string, source Source, logs map[string]string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger,
		source: source,
		logs:   logs,
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/ready", healthHandler)
	mux.HandleFunc("/readyz", healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/logs/", s.logsHandler)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// statusHandler serves the live bot status as JSON.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		http.Error(w, "status source not configured", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Status()); err != nil {
		s.logger.Warn("status_encode_failed", "error", err)
	}
}

// logsHandler serves the tail of one managed log file.
// Only the three launcher-managed names are recognized; anything else is 404.
func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)
	logPath, ok := s.logs[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	n := DefaultTailLines
	if q := r.URL.Query().Get("n"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	lines, err := TailFile(logPath, n)
	if err != nil {
		s.logger.Warn("log_tail_failed", "name", name, "error", err)
		http.Error(w, "log unavailable", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// Start starts the status server in a goroutine.
// Returns immediately. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("status_server_starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("status_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the underlying handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
