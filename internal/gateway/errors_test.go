package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorCategory
	}{
		{"request timeout", http.StatusRequestTimeout, CategoryTimeout},
		{"rate limited", http.StatusTooManyRequests, CategoryRateLimited},
		{"internal server error", http.StatusInternalServerError, CategoryOutage},
		{"bad gateway", http.StatusBadGateway, CategoryOutage},
		{"service unavailable", http.StatusServiceUnavailable, CategoryOutage},
		{"unauthorized", http.StatusUnauthorized, CategoryAuth},
		{"forbidden", http.StatusForbidden, CategoryAuth},
		{"payment required", http.StatusPaymentRequired, CategoryPlan},
		{"not found", http.StatusNotFound, CategoryNotFound},
		{"bad request", http.StatusBadRequest, CategoryBadRequest},
		{"unprocessable entity", http.StatusUnprocessableEntity, CategoryBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatus(tt.status); got != tt.want {
				t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassifyTransport(t *testing.T) {
	if got := ClassifyTransport(&fakeNetError{timeout: true}); got != CategoryTimeout {
		t.Errorf("ClassifyTransport(timeout) = %v, want %v", got, CategoryTimeout)
	}
	if got := ClassifyTransport(&fakeNetError{timeout: false}); got != CategoryOutage {
		t.Errorf("ClassifyTransport(refused) = %v, want %v", got, CategoryOutage)
	}
	if got := ClassifyTransport(errors.New("plain")); got != CategoryOutage {
		t.Errorf("ClassifyTransport(plain) = %v, want %v", got, CategoryOutage)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		category ErrorCategory
		want     bool
	}{
		{"timeout retries", CategoryTimeout, true},
		{"rate limited retries", CategoryRateLimited, true},
		{"outage retries", CategoryOutage, true},
		{"auth is permanent", CategoryAuth, false},
		{"plan is permanent", CategoryPlan, false},
		{"bad request is permanent", CategoryBadRequest, false},
		{"not found is permanent", CategoryNotFound, false},
		{"internal is permanent", CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAPIError("svc", "op", tt.category, 0, "boom", nil)
			if got := IsRetryable(err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.category, got, tt.want)
			}
		})
	}

	if IsRetryable(errors.New("plain")) {
		t.Error("IsRetryable(plain error) = true, want false")
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
}

func TestIsRetryableWrapped(t *testing.T) {
	inner := NewAPIError("svc", "op", CategoryOutage, http.StatusBadGateway, "down", nil)
	wrapped := fmt.Errorf("register example.com: %w", inner)

	if !IsRetryable(wrapped) {
		t.Error("IsRetryable should see through fmt.Errorf wrapping")
	}
	if got := Category(wrapped); got != CategoryOutage {
		t.Errorf("Category(wrapped) = %v, want %v", got, CategoryOutage)
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := &fakeNetError{timeout: true}
	err := NewAPIError("forwardemail", "add_domain", CategoryTimeout, 0, "timed out", cause)

	var netErr *fakeNetError
	if !errors.As(err, &netErr) {
		t.Fatal("errors.As should reach the transport cause")
	}
	if msg := err.Error(); msg == "" {
		t.Fatal("Error() returned empty string")
	}
}

func TestCategoryOfUnknownError(t *testing.T) {
	if got := Category(errors.New("plain")); got != CategoryInternal {
		t.Errorf("Category(plain) = %v, want %v", got, CategoryInternal)
	}
}

func TestDomainStatusVerified(t *testing.T) {
	tests := []struct {
		name   string
		status DomainStatus
		want   bool
	}{
		{"both records", DomainStatus{HasMXRecord: true, HasTXTRecord: true}, true},
		{"mx only", DomainStatus{HasMXRecord: true}, false},
		{"txt only", DomainStatus{HasTXTRecord: true}, false},
		{"neither", DomainStatus{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Verified(); got != tt.want {
				t.Errorf("Verified() = %v, want %v", got, tt.want)
			}
		})
	}
}
