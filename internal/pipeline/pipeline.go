package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmx/fleetmx/internal/alias"
	"github.com/fleetmx/fleetmx/internal/domain"
	"github.com/fleetmx/fleetmx/internal/gateway"
	"github.com/fleetmx/fleetmx/internal/logger"
	"github.com/fleetmx/fleetmx/internal/metrics"
	"github.com/fleetmx/fleetmx/internal/retry"
	"github.com/fleetmx/fleetmx/internal/store"
)

// Config carries the tunables of a provisioning run.
type Config struct {
	// AliasCount is the number of aliases each domain ends up with, the
	// unconditional info alias included.
	AliasCount int
	// ForwardTo is the destination inbox for every alias and the catch-all.
	ForwardTo string
	// PropagationWait is the single batch-wide pause between the DNS pass
	// and the verification pass.
	PropagationWait time.Duration

	RegisterPolicy retry.Policy
	DNSPolicy      retry.Policy
	VerifyPolicy   retry.Policy
	AliasPolicy    retry.Policy

	// DryRun skips the propagation wait; the app pairs it with the offline
	// gateways so no external call mutates anything.
	DryRun bool
}

// Options wires the pipeline's collaborators.
type Options struct {
	Config    Config
	Forwarder gateway.Forwarder
	DNSHost   gateway.DNSHost
	Store     *store.Store
	Export    *store.AliasExport
	Failures  *store.FailureLog
	Generator *alias.Generator
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// Pipeline drives every input domain through the provisioning lifecycle in
// two passes: registration and DNS first for the whole batch, then one
// propagation wait, then verification, aliases and completion. A domain
// failing a phase is parked in Failed and never aborts the batch.
type Pipeline struct {
	cfg      Config
	fwd      gateway.Forwarder
	dns      gateway.DNSHost
	store    *store.Store
	export   *store.AliasExport
	failures *store.FailureLog
	gen      *alias.Generator
	log      logger.Logger
	metrics  *metrics.Metrics

	newAliases int // reset at the start of each Run
}

// New validates the wiring and builds a pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Forwarder == nil:
		return nil, fmt.Errorf("pipeline needs a forwarder")
	case opts.DNSHost == nil:
		return nil, fmt.Errorf("pipeline needs a dns host")
	case opts.Store == nil:
		return nil, fmt.Errorf("pipeline needs a store")
	case opts.Export == nil:
		return nil, fmt.Errorf("pipeline needs an alias export")
	case opts.Generator == nil:
		return nil, fmt.Errorf("pipeline needs an alias generator")
	case opts.Logger == nil:
		return nil, fmt.Errorf("pipeline needs a logger")
	}
	if opts.Config.AliasCount < 1 {
		return nil, fmt.Errorf("alias count %d must be at least 1", opts.Config.AliasCount)
	}
	if opts.Config.ForwardTo == "" {
		return nil, fmt.Errorf("forward destination must be set")
	}

	return &Pipeline{
		cfg:      opts.Config,
		fwd:      opts.Forwarder,
		dns:      opts.DNSHost,
		store:    opts.Store,
		export:   opts.Export,
		failures: opts.Failures,
		gen:      opts.Generator,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// Summary is the per-run outcome tally.
type Summary struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Domains       int           `json:"domains"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	InFlight      int           `json:"in_flight"`
	NewAliases    int           `json:"new_aliases"`
	FailedDomains []string      `json:"failed_domains,omitempty"`
}

// Run processes the domains in input order. The returned error covers
// infrastructure trouble only (state persistence, cancellation); per-domain
// failures land in the summary and the state store instead.
func (p *Pipeline) Run(ctx context.Context, domains []string) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Domains:   len(domains),
	}
	p.newAliases = 0

	p.log.Info("🚀 provisioning run started",
		logger.String("run_id", summary.RunID),
		logger.Int("domains", len(domains)),
		logger.Bool("dry_run", p.cfg.DryRun))

	registry, err := p.seedRegistry()
	if err != nil {
		return summary, err
	}

	for _, name := range domains {
		if _, ok := p.store.Get(name); !ok {
			p.store.Upsert(domain.NewRecord(name))
		}
	}
	if err := p.store.Save(); err != nil {
		return summary, fmt.Errorf("persist new records: %w", err)
	}

	dnsConfigured := 0
	for _, name := range domains {
		if err := ctx.Err(); err != nil {
			return p.finish(summary, domains), err
		}
		advanced, err := p.passOne(ctx, name)
		if err != nil {
			return p.finish(summary, domains), err
		}
		if advanced {
			dnsConfigured++
		}
	}

	if err := p.waitForPropagation(ctx, dnsConfigured); err != nil {
		return p.finish(summary, domains), err
	}

	for _, name := range domains {
		if err := ctx.Err(); err != nil {
			return p.finish(summary, domains), err
		}
		if err := p.passTwo(ctx, name, registry); err != nil {
			return p.finish(summary, domains), err
		}
	}

	if err := p.writeExport(); err != nil {
		return p.finish(summary, domains), err
	}

	p.finish(summary, domains)
	p.log.Info("✅ provisioning run finished",
		logger.String("run_id", summary.RunID),
		logger.Int("completed", summary.Completed),
		logger.Int("failed", summary.Failed),
		logger.Int("new_aliases", summary.NewAliases),
		logger.Duration("took", summary.Duration))
	return summary, nil
}

// passOne runs registration and DNS configuration for one domain. It reports
// whether the domain entered DnsConfigured during this run, which decides if
// the batch needs a propagation wait.
func (p *Pipeline) passOne(ctx context.Context, name string) (bool, error) {
	rec, ok := p.store.Get(name)
	if !ok {
		return false, fmt.Errorf("record %s vanished from store", name)
	}
	if rec.State == domain.StateCompleted {
		p.log.Debug("domain already completed", logger.String("domain", name))
		return false, nil
	}

	if rec.Eligible(domain.PhaseRegistration) {
		if err := p.registerDomain(ctx, rec); err != nil {
			return false, err
		}
	}
	if rec.Eligible(domain.PhaseDNS) {
		return p.configureDNS(ctx, rec)
	}
	return false, nil
}

// passTwo runs verification, alias creation and completion for one domain.
func (p *Pipeline) passTwo(ctx context.Context, name string, registry *alias.Registry) error {
	rec, ok := p.store.Get(name)
	if !ok {
		return fmt.Errorf("record %s vanished from store", name)
	}
	if rec.State == domain.StateCompleted {
		return nil
	}

	if rec.Eligible(domain.PhaseVerification) {
		if err := p.verifyDomain(ctx, rec); err != nil {
			return err
		}
	}
	if rec.Eligible(domain.PhaseAliases) {
		if err := p.createAliases(ctx, rec, registry); err != nil {
			return err
		}
	}
	if rec.Eligible(domain.PhaseCompletion) {
		if err := p.complete(rec); err != nil {
			return err
		}
	}
	return nil
}

// seedRegistry pre-claims every local-part known from the alias export and
// the state records, so this run can never reissue one. The info alias is
// reserved outright; it is created by the pipeline, never generated.
func (p *Pipeline) seedRegistry() (*alias.Registry, error) {
	registry := alias.NewRegistry("info")

	addresses, err := p.export.Load()
	if err != nil {
		return nil, err
	}
	for address := range addresses {
		local, owner, ok := strings.Cut(address, "@")
		if !ok {
			continue
		}
		registry.Claim(local, owner)
	}

	for _, rec := range p.store.All() {
		for _, local := range rec.Aliases {
			registry.Claim(local, rec.Name)
		}
	}

	p.log.Debug("alias registry seeded", logger.Int("claimed", registry.Len()))
	return registry, nil
}

// waitForPropagation pauses the batch between the two passes. Nothing to
// wait for when no domain configured DNS this run, and dry runs skip it.
func (p *Pipeline) waitForPropagation(ctx context.Context, dnsConfigured int) error {
	if dnsConfigured == 0 || p.cfg.PropagationWait <= 0 {
		return nil
	}
	if p.cfg.DryRun {
		p.log.Info("dry-run: skipping propagation wait",
			logger.Duration("wait", p.cfg.PropagationWait))
		return nil
	}

	p.log.Info("⏳ waiting for dns propagation",
		logger.Duration("wait", p.cfg.PropagationWait),
		logger.Int("domains", dnsConfigured))

	timer := time.NewTimer(p.cfg.PropagationWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// writeExport rewrites the alias export as the union of what the file
// already held and every alias in the state records. Entries from prior
// runs survive even when their domains are absent from this state file.
func (p *Pipeline) writeExport() error {
	existing, err := p.export.Load()
	if err != nil {
		return err
	}

	addresses := make([]string, 0, len(existing))
	for address := range existing {
		addresses = append(addresses, address)
	}
	for _, rec := range p.store.All() {
		for _, local := range rec.Aliases {
			addresses = append(addresses, local+"@"+rec.Name)
		}
	}
	return p.export.Write(addresses)
}

// finish tallies final states for the input domains and stamps the duration.
func (p *Pipeline) finish(summary *Summary, domains []string) *Summary {
	for _, name := range domains {
		rec, ok := p.store.Get(name)
		if !ok {
			continue
		}
		switch rec.State {
		case domain.StateCompleted:
			summary.Completed++
			p.metrics.IncDomain("completed")
		case domain.StateFailed:
			summary.Failed++
			summary.FailedDomains = append(summary.FailedDomains, name)
			p.metrics.IncDomain("failed")
		default:
			summary.InFlight++
			p.metrics.IncDomain("in_flight")
		}
	}
	summary.NewAliases = p.newAliases
	summary.Duration = time.Since(summary.StartedAt)
	p.metrics.AddAliases(p.newAliases)
	p.metrics.ObserveRunDuration(summary.Duration)
	return summary
}
