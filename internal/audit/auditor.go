package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fleetmx/fleetmx/internal/gateway"
	"github.com/fleetmx/fleetmx/internal/logger"
)

// Classification buckets a domain by how much of its configuration is
// actually in place.
type Classification string

const (
	// FullyConfigured means all six checks passed.
	FullyConfigured Classification = "fully_configured"
	// PartiallyConfigured means some checks passed and some did not.
	PartiallyConfigured Classification = "partially_configured"
	// NotConfigured means the domain is absent from both the provider and
	// the DNS host.
	NotConfigured Classification = "not_configured"
)

// Check names.
const (
	CheckProviderDomain   = "provider_domain"
	CheckProviderVerified = "provider_verified"
	CheckProviderAliases  = "provider_aliases"
	CheckDNSZone          = "dns_zone"
	CheckDNSTXT           = "dns_txt"
	CheckDNSMX            = "dns_mx"
)

// Check is one verification probe and its outcome.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Result is the audit outcome for one domain.
type Result struct {
	Domain         string         `json:"domain"`
	Classification Classification `json:"classification"`
	Checks         []Check        `json:"checks"`
	Issues         []string       `json:"issues,omitempty"`
}

// Options wires the auditor.
type Options struct {
	Forwarder gateway.Forwarder
	DNSHost   gateway.DNSHost
	Logger    logger.Logger
	// AliasTarget is the alias count a fully provisioned domain carries.
	AliasTarget int
	// Concurrency bounds how many domains are audited at once.
	Concurrency int
}

// Auditor re-checks every domain's real provider and DNS state, independent
// of whatever the state store claims. It never writes anything; drift shows
// up as issues in the report.
type Auditor struct {
	fwd         gateway.Forwarder
	dns         gateway.DNSHost
	log         logger.Logger
	aliasTarget int
	concurrency int
}

// New builds an auditor.
func New(opts Options) (*Auditor, error) {
	switch {
	case opts.Forwarder == nil:
		return nil, fmt.Errorf("auditor needs a forwarder")
	case opts.DNSHost == nil:
		return nil, fmt.Errorf("auditor needs a dns host")
	case opts.Logger == nil:
		return nil, fmt.Errorf("auditor needs a logger")
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}
	return &Auditor{
		fwd:         opts.Forwarder,
		dns:         opts.DNSHost,
		log:         opts.Logger,
		aliasTarget: opts.AliasTarget,
		concurrency: concurrency,
	}, nil
}

// Audit probes every domain and returns results in input order.
func (a *Auditor) Audit(ctx context.Context, domains []string) ([]Result, error) {
	a.log.Info("audit started",
		logger.Int("domains", len(domains)),
		logger.Int("concurrency", a.concurrency))

	results := make([]Result, len(domains))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, name := range domains {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = a.auditDomain(ctx, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.log.Info("audit finished", logger.Int("domains", len(domains)))
	return results, nil
}

// auditDomain runs the six checks for one domain. Probe errors count as
// failed checks with the cause kept as an issue; they never abort the audit.
func (a *Auditor) auditDomain(ctx context.Context, name string) Result {
	res := Result{Domain: name}

	remote, err := a.fwd.GetDomain(ctx, name)
	providerPresent := err == nil
	if !providerPresent {
		if errors.Is(err, gateway.ErrDomainNotFound) {
			res.Issues = append(res.Issues, "domain not registered at the forwarding provider")
		} else {
			res.Issues = append(res.Issues, "provider lookup failed: "+err.Error())
		}
	}
	res.Checks = append(res.Checks, Check{Name: CheckProviderDomain, Passed: providerPresent})

	verified := false
	aliasOK := false
	if providerPresent {
		verified = remote.Verified()
		if !verified {
			res.Issues = append(res.Issues, "provider has not verified the domain ("+missingFlags(remote.DomainStatus)+")")
		}

		aliases, err := a.fwd.ListAliases(ctx, remote.ID)
		switch {
		case err != nil:
			res.Issues = append(res.Issues, "alias listing failed: "+err.Error())
		case len(aliases) >= a.aliasTarget:
			aliasOK = true
		default:
			res.Issues = append(res.Issues,
				fmt.Sprintf("only %d of %d aliases exist", len(aliases), a.aliasTarget))
		}
	}
	res.Checks = append(res.Checks,
		Check{Name: CheckProviderVerified, Passed: verified},
		Check{Name: CheckProviderAliases, Passed: aliasOK},
	)

	zoneID, err := a.dns.ZoneID(ctx, name)
	zonePresent := err == nil
	if !zonePresent {
		if errors.Is(err, gateway.ErrZoneNotFound) {
			res.Issues = append(res.Issues, "dns zone missing at the dns host")
		} else {
			res.Issues = append(res.Issues, "zone lookup failed: "+err.Error())
		}
	}
	res.Checks = append(res.Checks, Check{Name: CheckDNSZone, Passed: zonePresent})

	txtOK := false
	mxOK := false
	if zonePresent {
		records, err := a.dns.Records(ctx, zoneID)
		if err != nil {
			res.Issues = append(res.Issues, "record listing failed: "+err.Error())
		} else {
			var missingMX []string
			txtOK, mxOK, missingMX = a.inspectRecords(name, records)
			if !txtOK {
				res.Issues = append(res.Issues, "no TXT record on the zone root")
			}
			if !mxOK {
				res.Issues = append(res.Issues,
					"MX records missing: "+strings.Join(missingMX, ", "))
			}
		}
	}
	res.Checks = append(res.Checks,
		Check{Name: CheckDNSTXT, Passed: txtOK},
		Check{Name: CheckDNSMX, Passed: mxOK},
	)

	res.Classification = classify(res.Checks, providerPresent, zonePresent)
	return res
}

// inspectRecords scans the zone for a root TXT record and both provider mail
// exchangers.
func (a *Auditor) inspectRecords(name string, records []gateway.DNSRecord) (txtOK, mxOK bool, missingMX []string) {
	mxSeen := make(map[string]bool)
	for _, rec := range records {
		if rec.Name != name {
			continue
		}
		switch rec.Type {
		case "TXT":
			txtOK = true
		case "MX":
			mxSeen[rec.Content] = true
		}
	}

	for _, host := range a.fwd.MailExchangers() {
		if !mxSeen[host] {
			missingMX = append(missingMX, host)
		}
	}
	return txtOK, len(missingMX) == 0, missingMX
}

func classify(checks []Check, providerPresent, zonePresent bool) Classification {
	if !providerPresent && !zonePresent {
		return NotConfigured
	}
	for _, c := range checks {
		if !c.Passed {
			return PartiallyConfigured
		}
	}
	return FullyConfigured
}

func missingFlags(status gateway.DomainStatus) string {
	switch {
	case !status.HasMXRecord && !status.HasTXTRecord:
		return "MX and TXT not visible"
	case !status.HasMXRecord:
		return "MX not visible"
	default:
		return "TXT not visible"
	}
}
