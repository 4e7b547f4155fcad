// internal/httpserver/server.go
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleetmx/fleetmx/internal/httpserver/deps"
	"github.com/fleetmx/fleetmx/internal/httpserver/mw"
	"github.com/fleetmx/fleetmx/internal/httpserver/routes"
	"github.com/fleetmx/fleetmx/internal/logger"
)

// Server is the ops listener: health, readiness, provisioning status and
// metrics. It runs beside the pipeline and exposes nothing that mutates
// state.
type Server struct {
	http   *http.Server
	logger logger.Logger
}

// New builds the ops server (router, middlewares, route registration).
func New(addr string, loggerClient logger.Logger, d deps.Deps) *Server {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID) // X-Request-ID on each request
	r.Use(middleware.Recoverer) // never crash the process on panic
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(mw.Log(loggerClient)) // structured access logs

	routes.RegisterAll(r, d)

	s := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:   s,
		logger: loggerClient,
	}
}

// Start runs the ops server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Infof("ops server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	// http.ErrServerClosed is expected on graceful shutdown.
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("ops server shutting down...")
	return s.http.Shutdown(ctx)
}
