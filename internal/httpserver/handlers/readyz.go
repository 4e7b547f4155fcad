package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fleetmx/fleetmx/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready   bool `json:"ready"`
	Domains int  `json:"domains"`
}

// Readyz reports whether the state store is loaded and serving.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if d.Store == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(readyzResponse{Ready: false})
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(readyzResponse{
			Ready:   true,
			Domains: d.Store.Len(),
		})
	}
}
