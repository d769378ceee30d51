// Package server exposes the memory lifecycle engine over HTTP: create,
// batch create, query, list, update, delete, and health, plus a websocket
// stream of lifecycle events. Every route accepts an optional user_id for
// tenant scoping.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/becomeliminal/memkit/memory"
	"github.com/becomeliminal/memkit/memory/eventlog"
)

// Config configures the server.
type Config struct {
	// Manager is the memory lifecycle engine. Required.
	Manager *memory.Manager

	// Events, when set, feeds the /events websocket stream. It should be
	// the same broadcaster wired into the manager's event logger.
	Events *eventlog.Broadcaster
}

// Server is the HTTP facade over a Manager.
type Server struct {
	mgr    *memory.Manager
	events *eventlog.Broadcaster
	router chi.Router
	http   *http.Server
}

// New creates a server. It does not start listening until Run.
func New(cfg Config) (*Server, error) {
	s := &Server{
		mgr:    cfg.Manager,
		events: cfg.Events,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleLiveness)
	r.Get("/stats", s.handleStats)
	r.Post("/memories", s.handleCreate)
	r.Post("/memories/batch", s.handleCreateBatch)
	r.Get("/memories", s.handleList)
	r.Put("/memories/{id}", s.handleUpdate)
	r.Delete("/memories/{id}", s.handleDelete)
	r.Post("/query", s.handleQuery)
	r.Get("/events", s.handleEvents)

	s.router = r
	return s, nil
}

// Handler returns the routing handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until the listener fails or Shutdown is called.
func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("[SERVER] Listening on %s", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
