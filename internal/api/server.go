package api

import (
	"context"
	"net/http"
	"time"

	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/health"
	"github.com/inboxforge/warmline/internal/tracking"
)

// Server is the REST API server
type Server struct {
	config  *config.Config
	handler http.Handler
	server  *http.Server
}

// NewServer wires the handler set, tracking routes and health report
// into one HTTP handler.
func NewServer(cfg *config.Config, h *Handlers, trk *tracking.Handler, hlth *health.Handler) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, trk, hlth),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// The write timeout is generous: the synchronous campaign
		// process endpoint sleeps between send slots and can hold a
		// connection for most of its lock TTL.
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
