package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleetmx/fleetmx/internal/gateway"
	"github.com/fleetmx/fleetmx/internal/logger"
)

// auditForwarder serves reads from fixed maps. Mutating calls panic so a
// regression in the auditor's read-only contract fails loudly.
type auditForwarder struct {
	domains map[string]*gateway.RemoteDomain
	aliases map[string][]string
	getErr  map[string]error
	listErr error
}

func newAuditForwarder() *auditForwarder {
	return &auditForwarder{
		domains: make(map[string]*gateway.RemoteDomain),
		aliases: make(map[string][]string),
		getErr:  make(map[string]error),
	}
}

func (f *auditForwarder) GetDomain(_ context.Context, name string) (*gateway.RemoteDomain, error) {
	if err := f.getErr[name]; err != nil {
		return nil, err
	}
	remote, ok := f.domains[name]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", name, gateway.ErrDomainNotFound)
	}
	copied := *remote
	return &copied, nil
}

func (f *auditForwarder) ListAliases(_ context.Context, providerID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.aliases[providerID], nil
}

func (f *auditForwarder) MailExchangers() []string {
	return []string{gateway.PrimaryMailExchanger, gateway.SecondaryMailExchanger}
}

func (f *auditForwarder) AddDomain(context.Context, string) (string, error) {
	panic("audit must not register domains")
}

func (f *auditForwarder) EnableProtection(context.Context, string) (string, error) {
	panic("audit must not change plans")
}

func (f *auditForwarder) GetDomainStatus(context.Context, string) (gateway.DomainStatus, error) {
	panic("audit reads domains, not provider status")
}

func (f *auditForwarder) CreateAlias(context.Context, string, string, string) error {
	panic("audit must not create aliases")
}

// auditDNS serves zone and record reads from fixed maps.
type auditDNS struct {
	zones   map[string]string
	records map[string][]gateway.DNSRecord
	zoneErr map[string]error
	recErr  error
}

func newAuditDNS() *auditDNS {
	return &auditDNS{
		zones:   make(map[string]string),
		records: make(map[string][]gateway.DNSRecord),
		zoneErr: make(map[string]error),
	}
}

func (h *auditDNS) ZoneID(_ context.Context, domainName string) (string, error) {
	if err := h.zoneErr[domainName]; err != nil {
		return "", err
	}
	id, ok := h.zones[domainName]
	if !ok {
		return "", fmt.Errorf("zone for %s: %w", domainName, gateway.ErrZoneNotFound)
	}
	return id, nil
}

func (h *auditDNS) Records(_ context.Context, zoneID string) ([]gateway.DNSRecord, error) {
	if h.recErr != nil {
		return nil, h.recErr
	}
	return h.records[zoneID], nil
}

func (h *auditDNS) UpsertRecord(context.Context, string, gateway.DNSRecord) error {
	panic("audit must not write dns records")
}

// seedProvider registers a verified domain with count aliases.
func (f *auditForwarder) seedProvider(name string, count int) {
	id := "dom-" + name
	f.domains[name] = &gateway.RemoteDomain{
		ID:           id,
		Name:         name,
		Plan:         "enhanced_protection",
		DomainStatus: gateway.DomainStatus{HasMXRecord: true, HasTXTRecord: true},
	}
	for i := 0; i < count; i++ {
		f.aliases[id] = append(f.aliases[id], fmt.Sprintf("alias%d", i))
	}
}

// seedZone creates a zone carrying a root TXT plus both mail exchangers.
func (h *auditDNS) seedZone(name string) {
	id := "zone-" + name
	h.zones[name] = id
	h.records[id] = []gateway.DNSRecord{
		{Type: "TXT", Name: name, Content: `"fe-verify-token"`},
		{Type: "MX", Name: name, Content: gateway.PrimaryMailExchanger, Priority: 10},
		{Type: "MX", Name: name, Content: gateway.SecondaryMailExchanger, Priority: 10},
	}
}

func newTestAuditor(t *testing.T, fwd *auditForwarder, dns *auditDNS, target int) *Auditor {
	t.Helper()

	a, err := New(Options{
		Forwarder:   fwd,
		DNSHost:     dns,
		Logger:      logger.New("error", false, ""),
		AliasTarget: target,
	})
	if err != nil {
		t.Fatalf("build auditor: %v", err)
	}
	return a
}

func checkmap(res Result) map[string]bool {
	m := make(map[string]bool, len(res.Checks))
	for _, c := range res.Checks {
		m[c.Name] = c.Passed
	}
	return m
}

func hasIssue(res Result, substr string) bool {
	for _, issue := range res.Issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}

func TestAuditFullyConfigured(t *testing.T) {
	fwd := newAuditForwarder()
	dns := newAuditDNS()
	fwd.seedProvider("acme.com", 50)
	dns.seedZone("acme.com")

	results, err := newTestAuditor(t, fwd, dns, 50).Audit(context.Background(), []string{"acme.com"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	res := results[0]
	if res.Classification != FullyConfigured {
		t.Fatalf("classification = %s, want %s", res.Classification, FullyConfigured)
	}
	if len(res.Issues) != 0 {
		t.Fatalf("unexpected issues: %v", res.Issues)
	}
	if len(res.Checks) != 6 {
		t.Fatalf("got %d checks, want 6", len(res.Checks))
	}
	for _, c := range res.Checks {
		if !c.Passed {
			t.Errorf("check %s failed on a fully configured domain", c.Name)
		}
	}
}

func TestAuditMissingZoneIsPartial(t *testing.T) {
	fwd := newAuditForwarder()
	dns := newAuditDNS()
	fwd.seedProvider("acme.com", 50)

	results, err := newTestAuditor(t, fwd, dns, 50).Audit(context.Background(), []string{"acme.com"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	res := results[0]
	if res.Classification != PartiallyConfigured {
		t.Fatalf("classification = %s, want %s", res.Classification, PartiallyConfigured)
	}
	if !hasIssue(res, "zone missing") {
		t.Fatalf("issues do not name the missing zone: %v", res.Issues)
	}

	passed := checkmap(res)
	for _, name := range []string{CheckProviderDomain, CheckProviderVerified, CheckProviderAliases} {
		if !passed[name] {
			t.Errorf("provider check %s should pass", name)
		}
	}
	for _, name := range []string{CheckDNSZone, CheckDNSTXT, CheckDNSMX} {
		if passed[name] {
			t.Errorf("dns check %s should fail without a zone", name)
		}
	}
}

func TestAuditAbsentEverywhereIsNotConfigured(t *testing.T) {
	results, err := newTestAuditor(t, newAuditForwarder(), newAuditDNS(), 50).
		Audit(context.Background(), []string{"ghost.example"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	res := results[0]
	if res.Classification != NotConfigured {
		t.Fatalf("classification = %s, want %s", res.Classification, NotConfigured)
	}
	if !hasIssue(res, "not registered") || !hasIssue(res, "zone missing") {
		t.Fatalf("issues should name both gaps: %v", res.Issues)
	}
}

func TestAuditShortAliasCount(t *testing.T) {
	fwd := newAuditForwarder()
	dns := newAuditDNS()
	fwd.seedProvider("acme.com", 10)
	dns.seedZone("acme.com")

	results, err := newTestAuditor(t, fwd, dns, 50).Audit(context.Background(), []string{"acme.com"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	res := results[0]
	if res.Classification != PartiallyConfigured {
		t.Fatalf("classification = %s, want %s", res.Classification, PartiallyConfigured)
	}
	if !hasIssue(res, "only 10 of 50 aliases exist") {
		t.Fatalf("issues do not report the alias shortfall: %v", res.Issues)
	}
	if checkmap(res)[CheckProviderAliases] {
		t.Fatal("alias check should fail at 10 of 50")
	}
}

func TestAuditNamesMissingMailExchanger(t *testing.T) {
	fwd := newAuditForwarder()
	dns := newAuditDNS()
	fwd.seedProvider("acme.com", 50)
	dns.seedZone("acme.com")

	zoneID := dns.zones["acme.com"]
	var kept []gateway.DNSRecord
	for _, rec := range dns.records[zoneID] {
		if rec.Content != gateway.SecondaryMailExchanger {
			kept = append(kept, rec)
		}
	}
	dns.records[zoneID] = kept

	results, err := newTestAuditor(t, fwd, dns, 50).Audit(context.Background(), []string{"acme.com"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	res := results[0]
	if res.Classification != PartiallyConfigured {
		t.Fatalf("classification = %s, want %s", res.Classification, PartiallyConfigured)
	}
	if !hasIssue(res, gateway.SecondaryMailExchanger) {
		t.Fatalf("issues do not name the missing exchanger: %v", res.Issues)
	}
	passed := checkmap(res)
	if passed[CheckDNSMX] {
		t.Fatal("MX check should fail with one exchanger missing")
	}
	if !passed[CheckDNSTXT] {
		t.Fatal("TXT check should still pass")
	}
}

func TestAuditUnverifiedDomain(t *testing.T) {
	fwd := newAuditForwarder()
	dns := newAuditDNS()
	fwd.seedProvider("acme.com", 50)
	fwd.domains["acme.com"].DomainStatus = gateway.DomainStatus{HasMXRecord: true}
	dns.seedZone("acme.com")

	results, err := newTestAuditor(t, fwd, dns, 50).Audit(context.Background(), []string{"acme.com"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	res := results[0]
	if res.Classification != PartiallyConfigured {
		t.Fatalf("classification = %s, want %s", res.Classification, PartiallyConfigured)
	}
	if !hasIssue(res, "TXT not visible") {
		t.Fatalf("issues do not name the unverified record: %v", res.Issues)
	}
	if checkmap(res)[CheckProviderVerified] {
		t.Fatal("verified check should fail")
	}
}

func TestAuditProbeErrorIsIssueNotAbort(t *testing.T) {
	fwd := newAuditForwarder()
	dns := newAuditDNS()
	fwd.getErr["flaky.example"] = gateway.NewAPIError("forwardemail", "get domain",
		gateway.CategoryOutage, http.StatusServiceUnavailable, "down", nil)
	dns.seedZone("flaky.example")
	fwd.seedProvider("acme.com", 50)
	dns.seedZone("acme.com")

	results, err := newTestAuditor(t, fwd, dns, 50).
		Audit(context.Background(), []string{"flaky.example", "acme.com"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	if results[0].Classification != PartiallyConfigured {
		t.Fatalf("flaky domain classified %s, want %s", results[0].Classification, PartiallyConfigured)
	}
	if !hasIssue(results[0], "provider lookup failed") {
		t.Fatalf("issues do not surface the probe error: %v", results[0].Issues)
	}
	if results[1].Classification != FullyConfigured {
		t.Fatalf("healthy domain classified %s, want %s", results[1].Classification, FullyConfigured)
	}
}

func TestAuditPreservesInputOrder(t *testing.T) {
	fwd := newAuditForwarder()
	dns := newAuditDNS()
	domains := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("site%d.example", i)
		domains = append(domains, name)
		if i%2 == 0 {
			fwd.seedProvider(name, 50)
			dns.seedZone(name)
		}
	}

	a, err := New(Options{
		Forwarder:   fwd,
		DNSHost:     dns,
		Logger:      logger.New("error", false, ""),
		AliasTarget: 50,
		Concurrency: 3,
	})
	if err != nil {
		t.Fatalf("build auditor: %v", err)
	}

	results, err := a.Audit(context.Background(), domains)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(results) != len(domains) {
		t.Fatalf("got %d results, want %d", len(results), len(domains))
	}
	for i, res := range results {
		if res.Domain != domains[i] {
			t.Errorf("result %d is %s, want %s", i, res.Domain, domains[i])
		}
	}
}

func TestAuditCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAuditor(t, newAuditForwarder(), newAuditDNS(), 50).
		Audit(ctx, []string{"acme.com"})
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}

func TestReportTallies(t *testing.T) {
	rep := NewReport([]Result{
		{Domain: "a.test", Classification: FullyConfigured},
		{Domain: "b.test", Classification: FullyConfigured},
		{Domain: "c.test", Classification: PartiallyConfigured},
		{Domain: "d.test", Classification: NotConfigured},
	})

	if rep.Domains != 4 {
		t.Fatalf("Domains = %d, want 4", rep.Domains)
	}
	if rep.FullyConfigured != 2 || rep.PartiallyConfigured != 1 || rep.NotConfigured != 1 {
		t.Fatalf("tallies = %d/%d/%d, want 2/1/1",
			rep.FullyConfigured, rep.PartiallyConfigured, rep.NotConfigured)
	}
	if rep.GeneratedAt.IsZero() {
		t.Fatal("GeneratedAt is zero")
	}
}

func TestReportWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "audit.json")
	rep := NewReport([]Result{
		{Domain: "a.test", Classification: FullyConfigured, Checks: []Check{{Name: CheckProviderDomain, Passed: true}}},
	})

	if err := rep.WriteFile(path); err != nil {
		t.Fatalf("write report: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Domains != 1 || len(decoded.Results) != 1 {
		t.Fatalf("decoded report lost results: %+v", decoded)
	}
	if decoded.Results[0].Domain != "a.test" {
		t.Fatalf("decoded domain = %s", decoded.Results[0].Domain)
	}
}

func TestReportWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	rep := NewReport([]Result{
		{
			Domain:         "a.test",
			Classification: PartiallyConfigured,
			Checks: []Check{
				{Name: CheckProviderDomain, Passed: true},
				{Name: CheckDNSZone, Passed: false},
			},
			Issues: []string{"dns zone missing at the dns host"},
		},
	})

	if err := rep.WriteFile(path); err != nil {
		t.Fatalf("write report: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "domain,classification,provider_domain") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "a.test,partially_configured,true") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
	if !strings.Contains(lines[1], "dns zone missing") {
		t.Fatalf("row does not carry issues: %s", lines[1])
	}
}

func TestReportRejectsUnknownExtension(t *testing.T) {
	rep := NewReport(nil)
	if err := rep.WriteFile(filepath.Join(t.TempDir(), "audit.xml")); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}
