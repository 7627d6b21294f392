// Package api exposes the orchestrator over HTTP: job lifecycle endpoints,
// a server-sent event stream, and a websocket stream.
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

	"github.com/orbitworks/orbit/internal/events"
	"github.com/orbitworks/orbit/internal/orchestrator"
)

// defaultOwner is used when a request carries no X-Owner-ID header.
const defaultOwner = "default"

// Server is the HTTP API server
type Server struct {
	manager *orchestrator.Manager
	hub     *events.Hub
	logger  *slog.Logger
	addr    string

	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(manager *orchestrator.Manager, hub *events.Hub, addr string, logger *slog.Logger) *Server {
	s := &Server{
		manager: manager,
		hub:     hub,
		logger:  logger.With("component", "api"),
		addr:    addr,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleSSE)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Post("/start", s.handleStartJob)
				r.Post("/pause", s.handlePauseJob)
				r.Post("/resume", s.handleResumeJob)
				r.Post("/cancel", s.handleCancelJob)
				r.Put("/request-document", s.handleUpdateRequestDocument)
				r.Put("/task-list", s.handleUpdateTaskList)
			})
		})

		r.Get("/cycles/{cycleID}", s.handleGetCycle)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the configured router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("api listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func ownerID(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	return defaultOwner
}

// credentialFrom extracts the execution credential from the Authorization
// header, tolerating a Bearer prefix.
func credentialFrom(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return auth
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeLifecycleError maps orchestrator sentinel errors onto HTTP codes
func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrAlreadyRunning), errors.Is(err, orchestrator.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
