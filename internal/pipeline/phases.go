package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fleetmx/fleetmx/internal/alias"
	"github.com/fleetmx/fleetmx/internal/domain"
	"github.com/fleetmx/fleetmx/internal/gateway"
	"github.com/fleetmx/fleetmx/internal/logger"
	"github.com/fleetmx/fleetmx/internal/retry"
)

// registerDomain adds the domain at the forwarding provider and captures the
// verification token. AddDomain is idempotent at the gateway level, so a
// resumed run converges on the same provider id. When protection cannot be
// enabled for a permanent reason the provider id stands in for the token
// instead of sinking the domain.
func (p *Pipeline) registerDomain(ctx context.Context, rec *domain.Record) error {
	rec.RecordAttempt(domain.PhaseRegistration)
	p.metrics.IncPhaseAttempt(string(domain.PhaseRegistration))
	p.log.Info("registering domain", logger.String("domain", rec.Name))

	var providerID string
	err := retry.Do(ctx, p.cfg.RegisterPolicy, func(int) error {
		id, err := p.fwd.AddDomain(ctx, rec.Name)
		if err != nil {
			return liftPermanent(err)
		}
		providerID = id
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.failPhase(rec, domain.PhaseRegistration, fmt.Errorf("add domain: %w", err))
	}
	rec.ProviderID = providerID

	var token string
	err = retry.Do(ctx, p.cfg.RegisterPolicy, func(int) error {
		t, err := p.fwd.EnableProtection(ctx, rec.ProviderID)
		if err != nil {
			return liftPermanent(err)
		}
		token = t
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if gateway.IsRetryable(err) {
			return p.failPhase(rec, domain.PhaseRegistration, fmt.Errorf("enable protection: %w", err))
		}
		p.log.Warn("protection unavailable, using provider id as verification token",
			logger.String("domain", rec.Name),
			logger.Error(err))
		token = rec.ProviderID
	}
	rec.VerificationToken = token

	if err := rec.Advance(domain.PhaseRegistration); err != nil {
		return err
	}
	if err := p.persist(rec); err != nil {
		return err
	}
	p.log.Info("domain registered",
		logger.String("domain", rec.Name),
		logger.String("provider_id", rec.ProviderID))
	return nil
}

// dnsEntry pairs a required record with the label used in failure messages.
type dnsEntry struct {
	label  string
	record gateway.DNSRecord
}

// requiredRecords builds the four mail records for the domain. All of them
// stay DNS-only (not proxied); proxying breaks MX and TXT resolution.
func (p *Pipeline) requiredRecords(rec *domain.Record) []dnsEntry {
	entries := []dnsEntry{
		{
			label: "TXT verification",
			record: gateway.DNSRecord{
				Type:    "TXT",
				Name:    rec.Name,
				Content: `"` + rec.VerificationToken + `"`,
			},
		},
		{
			label: "TXT catch-all",
			record: gateway.DNSRecord{
				Type:    "TXT",
				Name:    rec.Name,
				Content: "forward-email=" + p.cfg.ForwardTo,
			},
		},
	}
	for _, host := range p.fwd.MailExchangers() {
		entries = append(entries, dnsEntry{
			label: "MX " + host,
			record: gateway.DNSRecord{
				Type:     "MX",
				Name:     rec.Name,
				Content:  host,
				Priority: 10,
			},
		})
	}
	return entries
}

// configureDNS upserts the four required records. The phase advances only
// when every record lands; anything short of that parks the domain in
// Failed with the missing records named.
func (p *Pipeline) configureDNS(ctx context.Context, rec *domain.Record) (bool, error) {
	rec.RecordAttempt(domain.PhaseDNS)
	p.metrics.IncPhaseAttempt(string(domain.PhaseDNS))
	p.log.Info("configuring dns records", logger.String("domain", rec.Name))

	var zoneID string
	err := retry.Do(ctx, p.cfg.DNSPolicy, func(int) error {
		id, err := p.dns.ZoneID(ctx, rec.Name)
		if err != nil {
			return liftPermanent(err)
		}
		zoneID = id
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, p.failPhase(rec, domain.PhaseDNS, fmt.Errorf("zone lookup: %w", err))
	}

	var missing []string
	for _, entry := range p.requiredRecords(rec) {
		record := entry.record
		err := retry.Do(ctx, p.cfg.DNSPolicy, func(int) error {
			return liftPermanent(p.dns.UpsertRecord(ctx, zoneID, record))
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			p.log.Error("dns upsert failed",
				logger.String("domain", rec.Name),
				logger.String("record", entry.label),
				logger.Error(err))
			missing = append(missing, entry.label)
		}
	}
	if len(missing) > 0 {
		return false, p.failPhase(rec, domain.PhaseDNS,
			fmt.Errorf("records not configured: %s", strings.Join(missing, ", ")))
	}

	if err := rec.Advance(domain.PhaseDNS); err != nil {
		return false, err
	}
	if err := p.persist(rec); err != nil {
		return false, err
	}
	p.log.Info("dns records configured", logger.String("domain", rec.Name))
	return true, nil
}

// verifyDomain polls the provider's stored DNS flags until both records are
// visible. This is a pure status read; the provider re-checks DNS on its own
// schedule, and an active re-check endpoint would flap under propagation
// delay.
func (p *Pipeline) verifyDomain(ctx context.Context, rec *domain.Record) error {
	rec.RecordAttempt(domain.PhaseVerification)
	p.metrics.IncPhaseAttempt(string(domain.PhaseVerification))
	p.log.Info("verifying dns visibility", logger.String("domain", rec.Name))

	err := retry.Do(ctx, p.cfg.VerifyPolicy, func(int) error {
		status, err := p.fwd.GetDomainStatus(ctx, rec.ProviderID)
		if err != nil {
			return liftPermanent(err)
		}
		rec.HasMXRecord = status.HasMXRecord
		rec.HasTXTRecord = status.HasTXTRecord
		if !status.Verified() {
			return fmt.Errorf("%s not visible yet", missingRecords(status))
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.failPhase(rec, domain.PhaseVerification, err)
	}

	if err := rec.Advance(domain.PhaseVerification); err != nil {
		return err
	}
	if err := p.persist(rec); err != nil {
		return err
	}
	p.log.Info("domain verified", logger.String("domain", rec.Name))
	return nil
}

// missingRecords names whichever required records the provider cannot see.
func missingRecords(status gateway.DomainStatus) string {
	switch {
	case !status.HasMXRecord && !status.HasTXTRecord:
		return "MX and TXT records"
	case !status.HasMXRecord:
		return "MX records"
	case !status.HasTXTRecord:
		return "TXT record"
	default:
		return ""
	}
}

// createAliases brings the domain up to the configured alias count: the info
// alias first, then generated local-parts. Created aliases survive both batch
// retries and failed runs; AlreadyExists from the provider counts as created.
func (p *Pipeline) createAliases(ctx context.Context, rec *domain.Record, registry *alias.Registry) error {
	rec.RecordAttempt(domain.PhaseAliases)
	p.metrics.IncPhaseAttempt(string(domain.PhaseAliases))

	var pending []string
	if !rec.HasAlias("info") {
		pending = append(pending, "info")
	}
	if need := p.cfg.AliasCount - len(rec.Aliases) - len(pending); need > 0 {
		names, err := p.gen.Generate(rec.Name, need, registry)
		if err != nil {
			return p.failPhase(rec, domain.PhaseAliases, err)
		}
		pending = append(pending, names...)
	}

	p.log.Info("creating aliases",
		logger.String("domain", rec.Name),
		logger.Int("existing", len(rec.Aliases)),
		logger.Int("pending", len(pending)))

	created := 0
	err := retry.Do(ctx, p.cfg.AliasPolicy, func(attempt int) error {
		if attempt > 1 {
			p.log.Warn("retrying alias batch",
				logger.String("domain", rec.Name),
				logger.Int("attempt", attempt),
				logger.Int("remaining", len(pending)))
		}
		for len(pending) > 0 {
			local := pending[0]
			err := p.fwd.CreateAlias(ctx, rec.ProviderID, local, p.cfg.ForwardTo)
			switch {
			case err == nil:
				created++
			case errors.Is(err, gateway.ErrAliasExists):
				p.log.Debug("alias already present",
					logger.String("domain", rec.Name),
					logger.String("alias", local))
			default:
				return liftPermanent(err)
			}
			rec.AddAlias(local)
			pending = pending[1:]
		}
		return nil
	})
	p.newAliases += created
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// aliases created before the failure stay on the record
		return p.failPhase(rec, domain.PhaseAliases, fmt.Errorf("alias creation: %w", err))
	}

	if err := rec.Advance(domain.PhaseAliases); err != nil {
		return err
	}
	if err := p.persist(rec); err != nil {
		return err
	}
	p.log.Info("aliases created",
		logger.String("domain", rec.Name),
		logger.Int("total", len(rec.Aliases)),
		logger.Int("new", created))
	return nil
}

// complete seals the domain once the full alias set exists. A short count
// sends it back to the alias phase for a top-up on the next run.
func (p *Pipeline) complete(rec *domain.Record) error {
	if len(rec.Aliases) < p.cfg.AliasCount {
		return p.failPhase(rec, domain.PhaseAliases,
			fmt.Errorf("only %d of %d aliases exist", len(rec.Aliases), p.cfg.AliasCount))
	}

	if err := rec.Advance(domain.PhaseCompletion); err != nil {
		return err
	}
	if err := p.persist(rec); err != nil {
		return err
	}
	p.log.Info("✅ domain completed",
		logger.String("domain", rec.Name),
		logger.Int("aliases", len(rec.Aliases)))
	return nil
}

// failPhase parks the record in Failed, persists it and mirrors the cause
// into the failure log. Failure log trouble is logged but never aborts the
// batch.
func (p *Pipeline) failPhase(rec *domain.Record, phase domain.Phase, cause error) error {
	p.log.Error("phase failed",
		logger.String("domain", rec.Name),
		logger.String("phase", string(phase)),
		logger.Error(cause))

	if err := rec.Fail(phase, cause.Error()); err != nil {
		return err
	}
	if err := p.persist(rec); err != nil {
		return err
	}
	if err := p.failures.Append(rec.Name, phase, cause.Error()); err != nil {
		p.log.Warn("failure log write failed", logger.Error(err))
	}
	return nil
}

// persist stores the record and flushes the snapshot, keeping crash loss to
// the in-flight phase at most.
func (p *Pipeline) persist(rec *domain.Record) error {
	p.store.Upsert(rec)
	if err := p.store.Save(); err != nil {
		return fmt.Errorf("persist %s: %w", rec.Name, err)
	}
	return nil
}

// liftPermanent stops retrying when the error cannot be fixed by another
// attempt, while keeping the original error visible to callers.
func liftPermanent(err error) error {
	if err == nil || gateway.IsRetryable(err) {
		return err
	}
	return retry.Permanent(err)
}
