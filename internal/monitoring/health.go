// Package monitoring serves the operational endpoints of a generation
// run: a health summary and the Prometheus metrics handler.
package monitoring

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hypogenlab/hypogen/internal/logger"
)

// Health describes the current state of the process.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	System    System    `json:"system"`
	Run       RunInfo   `json:"run"`
}

type System struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	HeapAllocMB  uint64 `json:"heap_alloc_mb"`
}

// RunInfo identifies the generation run being served.
type RunInfo struct {
	ModelKey  string `json:"model_key"`
	Mode      string `json:"mode"`
	VocabSize int    `json:"vocab_size"`
	Scorer    string `json:"scorer"`
}

// Server exposes /healthz and /metrics.
type Server struct {
	mu    sync.RWMutex
	run   RunInfo
	start time.Time
	log   *logger.Logger
}

func NewServer(log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{start: time.Now(), log: log}
}

// SetRunInfo publishes the active run's identity to the health endpoint.
func (s *Server) SetRunInfo(info RunInfo) {
	s.mu.Lock()
	s.run = info
	s.mu.Unlock()
}

// Handler returns the mux with both endpoints registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe blocks serving the endpoints; meant to run in its own
// goroutine.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("monitoring endpoints serving", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.RLock()
	run := s.run
	s.mu.RUnlock()

	h := Health{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.start).Round(time.Second).String(),
		System: System{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			HeapAllocMB:  mem.HeapAlloc / 1024 / 1024,
		},
		Run: run,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.log.Error("failed to write health response", "error", err.Error())
	}
}
