package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetmx/fleetmx/internal/domain"
	"github.com/fleetmx/fleetmx/internal/httpserver/deps"
)

type domainStatus struct {
	Domain      string    `json:"domain"`
	State       string    `json:"state"`
	FailedPhase string    `json:"failed_phase,omitempty"`
	Aliases     int       `json:"aliases"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type statusResponse struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Mode        string         `json:"mode"`
	Counts      map[string]int `json:"counts"`
	Domains     []domainStatus `json:"domains"`
}

// Status renders the provisioning fleet: per-state counts plus one line per
// domain, with the failed ones carrying their phase and last error.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		counts := d.Store.Counts()
		records := d.Store.All()

		out := statusResponse{
			GeneratedAt: d.Now().UTC(),
			Mode:        fleetMode(counts, len(records)),
			Counts:      make(map[string]int, len(counts)),
			Domains:     make([]domainStatus, 0, len(records)),
		}
		for state, n := range counts {
			out.Counts[string(state)] = n
		}

		for _, rec := range records {
			ds := domainStatus{
				Domain:    rec.Name,
				State:     string(rec.State),
				Aliases:   len(rec.Aliases),
				Attempts:  totalAttempts(rec),
				UpdatedAt: rec.UpdatedAt,
			}
			if rec.State == domain.StateFailed {
				ds.FailedPhase = string(rec.FailedPhase)
				if n := len(rec.Errors); n > 0 {
					ds.LastError = rec.Errors[n-1].Message
				}
			}
			out.Domains = append(out.Domains, ds)
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	}
}

// fleetMode summarizes the whole store in one word.
func fleetMode(counts map[domain.State]int, total int) string {
	switch {
	case total == 0:
		return "idle"
	case counts[domain.StateFailed] > 0:
		return "degraded"
	case counts[domain.StateCompleted] == total:
		return "completed"
	default:
		return "provisioning"
	}
}

func totalAttempts(rec *domain.Record) int {
	n := 0
	for _, c := range rec.AttemptCounts {
		n += c
	}
	return n
}
