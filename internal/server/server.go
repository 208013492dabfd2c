// Package server hosts the HTTP surface for both process roles.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vaibhavdavedev/datashelf/internal/app"
)

// Server manages the HTTP server and routes
type Server struct {
	app      *app.App
	server   *http.Server
	limiters *clientLimiters
}

// New creates the HTTP server for the application role: the read API for
// the serve process, the signed intake plus job admin for the worker.
func New(application *app.App) *Server {
	s := &Server{
		app:      application,
		limiters: newClientLimiters(application.Config.RateLimit.RequestsPerMinute),
	}

	port := application.Config.Server.Port
	if application.Role == app.RoleWorker {
		port = application.Config.Worker.Port
	}

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.server.Addr).
		Str("role", string(s.app.Role)).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within the context
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
