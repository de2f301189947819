package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinic-sync/internal/audit"
	"clinic-sync/internal/cache"
	"clinic-sync/internal/repo"
)

// Server exposes the daemon's operational surface: health, metrics, and the
// latest queue audit snapshot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	store      repo.Store
	cache      *cache.Redis
}

// New creates an HTTP server listening on addr.
func New(addr string, store repo.Store, redis *cache.Redis, logger *slog.Logger) *Server {
	server := &Server{
		logger: logger.With("component", "http"),
		store:  store,
		cache:  redis,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/queue", server.handleQueue)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Error("health check store ping failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleQueue serves the latest queue audit result published to Redis. A 404
// means no fresh audit is available within the TTL.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cache == nil {
		http.Error(w, "no cache configured", http.StatusNotFound)
		return
	}

	var result audit.Result
	ok, err := s.cache.GetJSON(r.Context(), audit.ResultKey, &result)
	if err != nil {
		s.logger.Error("failed reading queue snapshot", "error", err)
		http.Error(w, "failed reading queue snapshot", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no recent audit", http.StatusNotFound)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}
