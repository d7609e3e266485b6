// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package api exposes the local HTTP control surface: share triggers, queue
// reconciliation, health and event inspection, and Prometheus metrics.
//
// The surface binds to loopback by default. It is the desktop shell's way to
// drive the pipeline, not a public API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/educonnect/beacon/internal/cache"
	"github.com/educonnect/beacon/internal/logging"
	"github.com/educonnect/beacon/internal/monitor"
	"github.com/educonnect/beacon/internal/sharing"
)

// Config configures the HTTP server.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Server is the HTTP control surface. Implements suture.Service.
type Server struct {
	cfg          Config
	orchestrator *sharing.Orchestrator
	monitor      *monitor.Monitor
	cache        *cache.Manager
	log          zerolog.Logger
}

// NewServer creates the control-surface server.
func NewServer(cfg Config, o *sharing.Orchestrator, m *monitor.Monitor, c *cache.Manager) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Server{
		cfg:          cfg,
		orchestrator: o,
		monitor:      m,
		cache:        c,
		log:          logging.With().Str("component", "api").Logger(),
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Timeout))

	r.Route("/api/v1", func(r chi.Router) {
		// Shares hit the delivery provider; keep the trigger rate sane even
		// if the shell misbehaves.
		r.With(httprate.LimitByIP(10, time.Minute)).Post("/share", s.handleShare)
		r.Post("/share/sync", s.handleSync)
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.handleEvents)
		r.Post("/events/{id}/resolve", s.handleResolveEvent)
		r.Get("/locations", s.handleLocations)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// requestLogger logs one line per request in the component logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// Serve implements suture.Service: it runs the HTTP server until the context
// ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Control surface listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("Graceful shutdown failed, closing")
			_ = srv.Close() //nolint:errcheck // already failing
		}
		s.log.Info().Msg("Control surface stopped")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string {
	return "http-api"
}
