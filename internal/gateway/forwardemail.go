package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleetmx/fleetmx/internal/logger"
	"github.com/fleetmx/fleetmx/internal/metrics"
	"github.com/fleetmx/fleetmx/internal/utils"
	"github.com/fleetmx/fleetmx/internal/version"
)

const (
	serviceForwardEmail = "forwardemail"

	// DefaultForwardEmailBaseURL is the public API endpoint.
	DefaultForwardEmailBaseURL = "https://api.forwardemail.net"

	// The provider's mail exchangers; both are published at priority 10.
	PrimaryMailExchanger   = "mx1.forwardemail.net"
	SecondaryMailExchanger = "mx2.forwardemail.net"

	// enhancedProtectionPlan is the paid plan carrying the verification
	// record feature.
	enhancedProtectionPlan = "enhanced_protection"
)

// ForwardEmailClient talks to the ForwardEmail REST API.
type ForwardEmailClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     logger.Logger
	metrics *metrics.Metrics
}

// ForwardEmailOptions configures the client.
type ForwardEmailOptions struct {
	APIKey  string
	BaseURL string        // defaults to DefaultForwardEmailBaseURL
	Timeout time.Duration // per-request timeout
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// NewForwardEmailClient builds a ForwardEmail API client.
func NewForwardEmailClient(opts ForwardEmailOptions) *ForwardEmailClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultForwardEmailBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ForwardEmailClient{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// feDomain is the provider's domain payload, reduced to what we consume.
type feDomain struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Plan               string `json:"plan"`
	HasMXRecord        bool   `json:"has_mx_record"`
	HasTXTRecord       bool   `json:"has_txt_record"`
	VerificationRecord string `json:"verification_record"`
}

type feAlias struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type feErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// AddDomain registers the domain. The provider rejects duplicates with a 4xx,
// so those are resolved through a lookup to keep the operation idempotent.
func (c *ForwardEmailClient) AddDomain(ctx context.Context, name string) (string, error) {
	const op = "add_domain"

	var out feDomain
	err := c.do(ctx, op, http.MethodPost, "/v1/domains", map[string]any{"domain": name}, &out)
	if err == nil {
		return out.ID, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusConflict) {
		existing, lookupErr := c.GetDomain(ctx, name)
		if lookupErr == nil {
			c.log.Info("domain already registered, reusing provider id",
				logger.String("domain", name),
				logger.String("provider_id", existing.ID))
			return existing.ID, nil
		}
	}
	return "", err
}

// EnableProtection upgrades the domain to the enhanced protection plan and
// returns the verification token it unlocks. Plans without the feature fail
// permanently (402).
func (c *ForwardEmailClient) EnableProtection(ctx context.Context, providerID string) (string, error) {
	const op = "enable_protection"

	var out feDomain
	body := map[string]any{"plan": enhancedProtectionPlan}
	path := "/v1/domains/" + url.PathEscape(providerID)
	if err := c.do(ctx, op, http.MethodPut, path, body, &out); err != nil {
		return "", err
	}
	if out.VerificationRecord == "" {
		return "", NewAPIError(serviceForwardEmail, op, CategoryInternal, 0,
			"provider returned no verification record", nil)
	}
	return out.VerificationRecord, nil
}

// GetDomainStatus reads the provider's stored DNS flags for the domain.
func (c *ForwardEmailClient) GetDomainStatus(ctx context.Context, providerID string) (DomainStatus, error) {
	const op = "get_domain_status"

	var out feDomain
	path := "/v1/domains/" + url.PathEscape(providerID)
	if err := c.do(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		return DomainStatus{}, err
	}
	return DomainStatus{HasMXRecord: out.HasMXRecord, HasTXTRecord: out.HasTXTRecord}, nil
}

// CreateAlias adds a forwarding alias. A duplicate yields ErrAliasExists.
func (c *ForwardEmailClient) CreateAlias(ctx context.Context, providerID, localPart, destination string) error {
	const op = "create_alias"

	body := map[string]any{
		"name":       localPart,
		"recipients": []string{destination},
		"is_enabled": true,
	}
	path := "/v1/domains/" + url.PathEscape(providerID) + "/aliases"
	err := c.do(ctx, op, http.MethodPost, path, body, nil)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "already exists") {
		return fmt.Errorf("alias %s: %w", localPart, ErrAliasExists)
	}
	return err
}

// GetDomain fetches a domain by name. Absent domains yield ErrDomainNotFound.
func (c *ForwardEmailClient) GetDomain(ctx context.Context, name string) (*RemoteDomain, error) {
	const op = "get_domain"

	var out feDomain
	path := "/v1/domains/" + url.PathEscape(name)
	err := c.do(ctx, op, http.MethodGet, path, nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("domain %s: %w", name, ErrDomainNotFound)
		}
		return nil, err
	}
	return &RemoteDomain{
		ID:   out.ID,
		Name: out.Name,
		Plan: out.Plan,
		DomainStatus: DomainStatus{
			HasMXRecord:  out.HasMXRecord,
			HasTXTRecord: out.HasTXTRecord,
		},
	}, nil
}

// ListAliases returns the alias local-parts existing for the domain.
func (c *ForwardEmailClient) ListAliases(ctx context.Context, providerID string) ([]string, error) {
	const op = "list_aliases"

	var out []feAlias
	path := "/v1/domains/" + url.PathEscape(providerID) + "/aliases"
	if err := c.do(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out))
	for _, a := range out {
		names = append(names, a.Name)
	}
	return names, nil
}

// MailExchangers returns the provider's MX hosts, primary first.
func (c *ForwardEmailClient) MailExchangers() []string {
	return []string{PrimaryMailExchanger, SecondaryMailExchanger}
}

// do performs one API request. The API key rides as basic-auth username,
// responses decode into out when provided, and every failure comes back as an
// *APIError.
func (c *ForwardEmailClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return NewAPIError(serviceForwardEmail, op, CategoryInternal, 0, "marshal request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return NewAPIError(serviceForwardEmail, op, CategoryInternal, 0, "build request", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.IncGatewayRequest(serviceForwardEmail, op, "error")
		return NewAPIError(serviceForwardEmail, op, ClassifyTransport(err), 0, "request failed", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.IncGatewayRequest(serviceForwardEmail, op, "error")
		return NewAPIError(serviceForwardEmail, op, ClassifyStatus(resp.StatusCode),
			resp.StatusCode, readErrorMessage(resp.Body), nil)
	}

	c.metrics.IncGatewayRequest(serviceForwardEmail, op, "ok")

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewAPIError(serviceForwardEmail, op, CategoryInternal,
				resp.StatusCode, "decode response", err)
		}
	}
	return nil
}

// readErrorMessage extracts a human-readable message from an error body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}
	var body feErrorBody
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
