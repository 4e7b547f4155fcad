package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fleetmx/fleetmx/internal/logger"
)

// DryRunForwarder replaces the forwarding provider with an in-memory fake:
// every mutation is logged and recorded locally, ids and tokens are
// synthesized, and status reads always report the domain as verified so a
// dry run can walk the whole lifecycle offline.
type DryRunForwarder struct {
	log logger.Logger

	mu      sync.Mutex
	byName  map[string]*RemoteDomain
	byID    map[string]*RemoteDomain
	aliases map[string][]string // providerID -> local-parts
}

// NewDryRunForwarder builds the offline forwarding provider.
func NewDryRunForwarder(log logger.Logger) *DryRunForwarder {
	return &DryRunForwarder{
		log:     log,
		byName:  make(map[string]*RemoteDomain),
		byID:    make(map[string]*RemoteDomain),
		aliases: make(map[string][]string),
	}
}

func (f *DryRunForwarder) AddDomain(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.byName[name]; ok {
		return existing.ID, nil
	}

	d := &RemoteDomain{
		ID:           uuid.NewString(),
		Name:         name,
		Plan:         enhancedProtectionPlan,
		DomainStatus: DomainStatus{HasMXRecord: true, HasTXTRecord: true},
	}
	f.byName[name] = d
	f.byID[d.ID] = d

	f.log.Info("dry-run: would register domain",
		logger.String("domain", name),
		logger.String("provider_id", d.ID))
	return d.ID, nil
}

func (f *DryRunForwarder) EnableProtection(_ context.Context, providerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.byID[providerID]
	if !ok {
		return "", fmt.Errorf("provider id %s: %w", providerID, ErrDomainNotFound)
	}

	token := uuid.NewString()
	f.log.Info("dry-run: would enable protection",
		logger.String("domain", d.Name),
		logger.String("token", token))
	return token, nil
}

func (f *DryRunForwarder) GetDomainStatus(_ context.Context, providerID string) (DomainStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byID[providerID]; !ok {
		return DomainStatus{}, fmt.Errorf("provider id %s: %w", providerID, ErrDomainNotFound)
	}
	return DomainStatus{HasMXRecord: true, HasTXTRecord: true}, nil
}

func (f *DryRunForwarder) CreateAlias(_ context.Context, providerID, localPart, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.byID[providerID]
	if !ok {
		return fmt.Errorf("provider id %s: %w", providerID, ErrDomainNotFound)
	}
	for _, existing := range f.aliases[providerID] {
		if existing == localPart {
			return fmt.Errorf("alias %s: %w", localPart, ErrAliasExists)
		}
	}
	f.aliases[providerID] = append(f.aliases[providerID], localPart)

	f.log.Debug("dry-run: would create alias",
		logger.String("domain", d.Name),
		logger.String("alias", localPart),
		logger.String("destination", destination))
	return nil
}

func (f *DryRunForwarder) GetDomain(_ context.Context, name string) (*RemoteDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", name, ErrDomainNotFound)
	}
	copied := *d
	return &copied, nil
}

func (f *DryRunForwarder) ListAliases(_ context.Context, providerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byID[providerID]; !ok {
		return nil, fmt.Errorf("provider id %s: %w", providerID, ErrDomainNotFound)
	}
	return append([]string(nil), f.aliases[providerID]...), nil
}

func (f *DryRunForwarder) MailExchangers() []string {
	return []string{PrimaryMailExchanger, SecondaryMailExchanger}
}

// DryRunDNSHost fakes the DNS host in memory. Zones materialize on first
// lookup so the DNS phase can proceed for any domain.
type DryRunDNSHost struct {
	log logger.Logger

	mu      sync.Mutex
	zones   map[string]string // domain -> zone id
	records map[string][]DNSRecord
}

// NewDryRunDNSHost builds the offline DNS host.
func NewDryRunDNSHost(log logger.Logger) *DryRunDNSHost {
	return &DryRunDNSHost{
		log:     log,
		zones:   make(map[string]string),
		records: make(map[string][]DNSRecord),
	}
}

func (h *DryRunDNSHost) ZoneID(_ context.Context, domain string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id, ok := h.zones[domain]; ok {
		return id, nil
	}
	id := uuid.NewString()
	h.zones[domain] = id
	h.log.Info("dry-run: using synthetic zone",
		logger.String("domain", domain),
		logger.String("zone_id", id))
	return id, nil
}

func (h *DryRunDNSHost) UpsertRecord(_ context.Context, zoneID string, rec DNSRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rec.TTL <= 0 {
		rec.TTL = 1
	}
	for i, have := range h.records[zoneID] {
		if have.Type == rec.Type && have.Name == rec.Name && have.Content == rec.Content {
			rec.ID = have.ID
			h.records[zoneID][i] = rec
			return nil
		}
	}
	rec.ID = uuid.NewString()
	h.records[zoneID] = append(h.records[zoneID], rec)

	h.log.Debug("dry-run: would create dns record",
		logger.String("zone", zoneID),
		logger.String("type", rec.Type),
		logger.String("name", rec.Name),
		logger.String("content", rec.Content))
	return nil
}

func (h *DryRunDNSHost) Records(_ context.Context, zoneID string) ([]DNSRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]DNSRecord(nil), h.records[zoneID]...), nil
}
