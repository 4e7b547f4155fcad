package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/fleetmx/fleetmx/internal/httpserver/deps"
	"github.com/fleetmx/fleetmx/internal/httpserver/handlers"
	"github.com/fleetmx/fleetmx/internal/httpserver/mw"
)

func init() { Register(registerReadyz) }

func registerReadyz(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.Logger)).Get("/readyz", handlers.Readyz(d))
}
