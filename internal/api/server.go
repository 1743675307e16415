// Package api exposes a small read-only status server for observing the bot:
// what it is watching, what it has processed, and whether it is alive. The
// server is optional and only started when a listen address is configured.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"lifetimebot/internal/config"
	"lifetimebot/internal/schedule"
	"lifetimebot/internal/scheduler"
	"lifetimebot/internal/store"
)

// StatusSource is the scheduler-side view the API reads from.
type StatusSource interface {
	State() scheduler.State
	Watched() []schedule.Activity
}

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(src StatusSource, st *store.Store, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// --- Handler dependencies ---
	h := newHandler(src, st, cfg)

	// --- Routes ---
	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/activities", h.GetActivities)
		r.Get("/processed", h.GetProcessed)
	})

	return r
}

// Server wraps http.Server with graceful shutdown wired to the process
// context.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the status server on the configured address.
func NewServer(addr string, router http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully. Intended
// to run on its own goroutine alongside the scheduler loop.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Status server shutting down")
		return s.srv.Shutdown(shutdownCtx)
	}
}
