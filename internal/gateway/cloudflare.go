package gateway

import (
	"bytes"
	"context"
	"encoding/json"
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
	serviceCloudflare = "cloudflare"

	// DefaultCloudflareBaseURL is the public API endpoint.
	DefaultCloudflareBaseURL = "https://api.cloudflare.com/client/v4"
)

// CloudflareClient manages DNS records through the Cloudflare API.
type CloudflareClient struct {
	apiToken string
	baseURL  string
	client   *http.Client
	log      logger.Logger
	metrics  *metrics.Metrics
}

// CloudflareOptions configures the client.
type CloudflareOptions struct {
	APIToken string
	BaseURL  string        // defaults to DefaultCloudflareBaseURL
	Timeout  time.Duration // per-request timeout
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

// NewCloudflareClient builds a Cloudflare API client.
func NewCloudflareClient(opts CloudflareOptions) *CloudflareClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultCloudflareBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CloudflareClient{
		apiToken: opts.APIToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// cfResponse is the envelope every Cloudflare endpoint returns.
type cfResponse struct {
	Success bool            `json:"success"`
	Errors  []cfError       `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cfZone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ZoneID resolves the zone hosting the domain; ErrZoneNotFound when the
// account has no such zone.
func (c *CloudflareClient) ZoneID(ctx context.Context, domain string) (string, error) {
	const op = "zone_id"

	result, err := c.do(ctx, op, http.MethodGet, "/zones?name="+url.QueryEscape(domain), nil)
	if err != nil {
		return "", err
	}

	var zones []cfZone
	if err := json.Unmarshal(result, &zones); err != nil {
		return "", NewAPIError(serviceCloudflare, op, CategoryInternal, 0, "decode zones", err)
	}
	if len(zones) == 0 {
		return "", fmt.Errorf("zone %s: %w", domain, ErrZoneNotFound)
	}
	return zones[0].ID, nil
}

// UpsertRecord converges the zone onto the given record. Matching is by
// (type, name, content) because both MX records and both root TXT records
// share type and name; only TTL, priority and proxy mode are ever updated in
// place, and sibling records are never touched.
func (c *CloudflareClient) UpsertRecord(ctx context.Context, zoneID string, rec DNSRecord) error {
	existing, err := c.listRecords(ctx, zoneID, rec.Type, rec.Name)
	if err != nil {
		return err
	}

	if rec.TTL <= 0 {
		rec.TTL = 1 // automatic TTL
	}

	for _, have := range existing {
		if have.Content != rec.Content {
			continue
		}
		if have.TTL == rec.TTL && have.Priority == rec.Priority && have.Proxied == rec.Proxied {
			c.log.Debug("dns record already in place",
				logger.String("zone", zoneID),
				logger.String("type", rec.Type),
				logger.String("name", rec.Name))
			return nil
		}
		return c.updateRecord(ctx, zoneID, have.ID, rec)
	}

	return c.createRecord(ctx, zoneID, rec)
}

// Records lists every record in the zone.
func (c *CloudflareClient) Records(ctx context.Context, zoneID string) ([]DNSRecord, error) {
	const op = "list_records"

	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records?per_page=500"
	result, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var records []DNSRecord
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, NewAPIError(serviceCloudflare, op, CategoryInternal, 0, "decode records", err)
	}
	return records, nil
}

func (c *CloudflareClient) listRecords(ctx context.Context, zoneID, recType, name string) ([]DNSRecord, error) {
	const op = "list_records"

	path := fmt.Sprintf("/zones/%s/dns_records?type=%s&name=%s",
		url.PathEscape(zoneID), url.QueryEscape(recType), url.QueryEscape(name))
	result, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var records []DNSRecord
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, NewAPIError(serviceCloudflare, op, CategoryInternal, 0, "decode records", err)
	}
	return records, nil
}

func (c *CloudflareClient) createRecord(ctx context.Context, zoneID string, rec DNSRecord) error {
	const op = "create_record"

	body := recordBody(rec)
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records"
	if _, err := c.do(ctx, op, http.MethodPost, path, body); err != nil {
		return err
	}
	c.log.Info("dns record created",
		logger.String("zone", zoneID),
		logger.String("type", rec.Type),
		logger.String("name", rec.Name),
		logger.String("content", rec.Content))
	return nil
}

func (c *CloudflareClient) updateRecord(ctx context.Context, zoneID, recordID string, rec DNSRecord) error {
	const op = "update_record"

	body := recordBody(rec)
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records/" + url.PathEscape(recordID)
	if _, err := c.do(ctx, op, http.MethodPut, path, body); err != nil {
		return err
	}
	c.log.Info("dns record updated",
		logger.String("zone", zoneID),
		logger.String("type", rec.Type),
		logger.String("name", rec.Name))
	return nil
}

func recordBody(rec DNSRecord) map[string]any {
	body := map[string]any{
		"type":    rec.Type,
		"name":    rec.Name,
		"content": rec.Content,
		"ttl":     rec.TTL,
		"proxied": rec.Proxied,
	}
	if rec.Type == "MX" {
		body["priority"] = rec.Priority
	}
	return body
}

// do performs one API request and unwraps the Cloudflare response envelope.
func (c *CloudflareClient) do(ctx context.Context, op, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, NewAPIError(serviceCloudflare, op, CategoryInternal, 0, "marshal request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, NewAPIError(serviceCloudflare, op, CategoryInternal, 0, "build request", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.IncGatewayRequest(serviceCloudflare, op, "error")
		return nil, NewAPIError(serviceCloudflare, op, ClassifyTransport(err), 0, "request failed", err)
	}
	defer utils.Close(resp.Body)

	var envelope cfResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.metrics.IncGatewayRequest(serviceCloudflare, op, "error")
		return nil, NewAPIError(serviceCloudflare, op, CategoryInternal,
			resp.StatusCode, "decode response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !envelope.Success {
		c.metrics.IncGatewayRequest(serviceCloudflare, op, "error")
		category := ClassifyStatus(resp.StatusCode)
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			category = CategoryBadRequest
		}
		return nil, NewAPIError(serviceCloudflare, op, category,
			resp.StatusCode, envelopeMessage(envelope), nil)
	}

	c.metrics.IncGatewayRequest(serviceCloudflare, op, "ok")
	return envelope.Result, nil
}

func envelopeMessage(envelope cfResponse) string {
	if len(envelope.Errors) == 0 {
		return "request rejected"
	}
	parts := make([]string, 0, len(envelope.Errors))
	for _, e := range envelope.Errors {
		parts = append(parts, fmt.Sprintf("%d: %s", e.Code, e.Message))
	}
	return strings.Join(parts, "; ")
}
