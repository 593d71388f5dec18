// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/transcoderd/internal/control/middleware"
	"github.com/ManuGH/transcoderd/internal/health"
	"github.com/ManuGH/transcoderd/internal/log"
)

// Consumer is the pause/resume/close switch of the job slots.
type Consumer interface {
	Pause()
	Resume()
	Close()
}

// Signals is the subset of the registry the control surface drives.
type Signals interface {
	RequestRetry()
	Priority() int
}

// PriorityResponse is the body of GET /video/transcoder-priority.
type PriorityResponse struct {
	Priority int `json:"priority"`
}

// Config wires the control surface.
type Config struct {
	Listen string
	// RateLimit is requests per minute per client IP; zero disables limiting.
	RateLimit   int
	ServiceName string
	Consumer    Consumer
	Signals     Signals
	// Health backs /healthz and /readyz; nil serves an always-ready probe.
	Health *health.Manager
}

// Server is the HTTP control surface.
type Server struct {
	cfg Config
	srv *http.Server
}

// NewServer builds the router. Call ListenAndServe to start it.
func NewServer(cfg Config) *Server {
	if cfg.Health == nil {
		cfg.Health = health.NewManager("")
	}
	s := &Server{cfg: cfg}
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.cfg.ServiceName != "" {
		r.Use(middleware.OTelHTTP(s.cfg.ServiceName))
	}

	r.Get("/healthz", s.cfg.Health.ServeHealth)
	r.Get("/readyz", s.cfg.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/video", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.cfg.RateLimit,
				WindowSize:   time.Minute,
			}))
		}
		r.Post("/pause", s.handleConsumer("pause", s.cfg.Consumer.Pause))
		r.Post("/resume", s.handleConsumer("resume", s.cfg.Consumer.Resume))
		r.Post("/close", s.handleConsumer("close", s.cfg.Consumer.Close))
		r.Post("/retry-encoding", s.handleRetry)
		r.Get("/transcoder-priority", s.handlePriority)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	logger := log.WithComponent("control")
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str(log.FieldEvent, "control.listen").Str("addr", s.cfg.Listen).Msg("control surface listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleConsumer(action string, fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn()
		logger := log.WithComponentFromContext(r.Context(), "control")
		logger.Info().
			Str(log.FieldEvent, "consumer."+action).
			Msg("consumer " + action)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.cfg.Signals.RequestRetry()
	logger := log.WithComponentFromContext(r.Context(), "control")
	logger.Info().
		Str(log.FieldEvent, "retry.requested").
		Msg("retry requested for the running encode")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePriority(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PriorityResponse{Priority: s.cfg.Signals.Priority()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
