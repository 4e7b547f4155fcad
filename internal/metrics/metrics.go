package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for provisioning runs. All helper methods
// are nil-safe so components never have to check whether metrics are wired.
type Metrics struct {
	// Domains reaching a terminal outcome, by result ("completed"/"failed")
	DomainsProcessed *prometheus.CounterVec

	// Phase executions, by phase name
	PhaseAttempts *prometheus.CounterVec

	// Outgoing API requests, by service, operation and outcome
	GatewayRequests *prometheus.CounterVec

	// Aliases successfully created
	AliasesCreated prometheus.Counter

	// Wall time of the last run
	RunDuration prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DomainsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetmx_domains_processed_total",
			Help: "Domains that reached a terminal outcome, by result",
		}, []string{"result"}), // result: "completed", "failed"

		PhaseAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetmx_phase_attempts_total",
			Help: "Provisioning phase attempts, by phase",
		}, []string{"phase"}),

		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetmx_gateway_requests_total",
			Help: "Outgoing API requests, by service, operation and outcome",
		}, []string{"service", "operation", "outcome"}),

		AliasesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleetmx_aliases_created_total",
			Help: "Aliases successfully created at the forwarding provider",
		}),

		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetmx_run_duration_seconds",
			Help: "Wall time of the last provisioning run",
		}),
	}
}

// IncDomain records a domain reaching a terminal outcome.
func (m *Metrics) IncDomain(result string) {
	if m != nil {
		m.DomainsProcessed.WithLabelValues(result).Inc()
	}
}

// IncPhaseAttempt records one execution of a provisioning phase.
func (m *Metrics) IncPhaseAttempt(phase string) {
	if m != nil {
		m.PhaseAttempts.WithLabelValues(phase).Inc()
	}
}

// IncGatewayRequest records one outgoing API request.
func (m *Metrics) IncGatewayRequest(service, operation, outcome string) {
	if m != nil {
		m.GatewayRequests.WithLabelValues(service, operation, outcome).Inc()
	}
}

// AddAliases records successfully created aliases.
func (m *Metrics) AddAliases(n int) {
	if m != nil && n > 0 {
		m.AliasesCreated.Add(float64(n))
	}
}

// ObserveRunDuration records the wall time of a finished run.
func (m *Metrics) ObserveRunDuration(d time.Duration) {
	if m != nil {
		m.RunDuration.Set(d.Seconds())
	}
}
