package gateway

import (
	"context"
	"errors"
)

// Sentinel errors shared by every implementation. They travel wrapped inside
// richer errors, so match with errors.Is.
var (
	// ErrAliasExists reports an alias create that hit an existing alias.
	// Callers treat it as success.
	ErrAliasExists = errors.New("alias already exists")

	// ErrZoneNotFound reports a DNS zone absent from the host account.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrDomainNotFound reports a domain unknown to the forwarding provider.
	ErrDomainNotFound = errors.New("domain not found")
)

// DomainStatus mirrors the provider's stored view of a domain's DNS records.
// These flags come from the provider, never from a local lookup.
type DomainStatus struct {
	HasMXRecord  bool
	HasTXTRecord bool
}

// Verified reports whether the provider has seen both record kinds.
func (s DomainStatus) Verified() bool {
	return s.HasMXRecord && s.HasTXTRecord
}

// RemoteDomain is the provider's record of a registered domain.
type RemoteDomain struct {
	ID   string
	Name string
	Plan string
	DomainStatus
}

// Forwarder abstracts the email-forwarding provider.
type Forwarder interface {
	// AddDomain registers a domain and returns its provider id. Registering
	// an already-known domain returns the existing id instead of an error.
	AddDomain(ctx context.Context, name string) (string, error)

	// EnableProtection upgrades the domain plan and returns the verification
	// token to publish over DNS. A plan restriction is a permanent failure.
	EnableProtection(ctx context.Context, providerID string) (string, error)

	// GetDomainStatus reads the provider's stored DNS view of the domain.
	// It is a pure read and never triggers a provider-side re-check.
	GetDomainStatus(ctx context.Context, providerID string) (DomainStatus, error)

	// CreateAlias adds a forwarding alias for the domain. An alias that
	// already exists yields ErrAliasExists.
	CreateAlias(ctx context.Context, providerID, localPart, destination string) error

	// GetDomain fetches a domain by name; ErrDomainNotFound when absent.
	GetDomain(ctx context.Context, name string) (*RemoteDomain, error)

	// ListAliases returns the alias local-parts existing for the domain.
	ListAliases(ctx context.Context, providerID string) ([]string, error)

	// MailExchangers returns the provider's MX hosts, primary first.
	MailExchangers() []string
}

// DNSRecord is one record in a hosted zone.
type DNSRecord struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Priority int    `json:"priority,omitempty"`
	Proxied  bool   `json:"proxied"`
}

// DNSHost abstracts the authoritative DNS service.
type DNSHost interface {
	// ZoneID resolves a zone by domain name; ErrZoneNotFound when absent.
	ZoneID(ctx context.Context, domain string) (string, error)

	// UpsertRecord creates the record when no record with the same type,
	// name and content exists, updates it in place when only TTL, priority
	// or proxy mode drifted, and otherwise leaves the zone untouched. It
	// never deletes sibling records sharing the same type and name.
	UpsertRecord(ctx context.Context, zoneID string, rec DNSRecord) error

	// Records lists every record in the zone.
	Records(ctx context.Context, zoneID string) ([]DNSRecord, error)
}
