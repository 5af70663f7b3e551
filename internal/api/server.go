package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/sift/internal/metrics"
)

// ProgressSource reports the live state of the current run.
type ProgressSource interface {
	Snapshot() metrics.Progress
}

type Server struct {
	router   *chi.Mux
	addr     string
	progress ProgressSource
	logger   *slog.Logger
}

// NewServer wires the status routes. m may be nil, in which case /metrics is
// not served.
func NewServer(addr string, progress ProgressSource, m *metrics.Metrics, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if m != nil {
		router.Use(m.Middleware)
	}

	s := &Server{
		router:   router,
		addr:     addr,
		progress: progress,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/run/status", s.status)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	return s
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown", "error", err)
		}
	}()

	s.logger.Info("status server starting", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeJSON(w, http.StatusOK, metrics.Progress{State: metrics.StateIdle})
		return
	}
	writeJSON(w, http.StatusOK, s.progress.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
