package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetmx/fleetmx/internal/httpserver/deps"
	"github.com/fleetmx/fleetmx/internal/httpserver/handlers"
	"github.com/fleetmx/fleetmx/internal/httpserver/mw"
)

func init() { Register(registerStatus) }

func registerStatus(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:     30,
		PerMinute: 60,
		IdleTTL:   15 * time.Minute,
	})
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.Logger), limit).
		Get("/status", handlers.Status(d))
}
