package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCategory classifies gateway failures for retry decisions.
type ErrorCategory string

const (
	// CategoryTimeout covers request timeouts, transport and network level.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryRateLimited covers 429 responses.
	CategoryRateLimited ErrorCategory = "rate_limited"
	// CategoryOutage covers 5xx responses and connection failures.
	CategoryOutage ErrorCategory = "provider_outage"
	// CategoryAuth covers rejected credentials (401, 403).
	CategoryAuth ErrorCategory = "authentication"
	// CategoryPlan covers features the account plan does not include (402).
	CategoryPlan ErrorCategory = "plan_restriction"
	// CategoryBadRequest covers payloads the service rejected (other 4xx).
	CategoryBadRequest ErrorCategory = "bad_request"
	// CategoryNotFound covers 404 responses.
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryInternal covers failures on our side (marshalling, decoding).
	CategoryInternal ErrorCategory = "internal"
)

// retryableCategories marks the transient subset: these are worth retrying,
// everything else fails the operation immediately.
var retryableCategories = map[ErrorCategory]bool{
	CategoryTimeout:     true,
	CategoryRateLimited: true,
	CategoryOutage:      true,
}

// APIError is a structured failure from one of the external services.
type APIError struct {
	Service   string        // "forwardemail" or "cloudflare"
	Operation string        // logical operation, ex: "add_domain"
	Category  ErrorCategory // taxonomy bucket, drives Retryable
	Status    int           // HTTP status, 0 for transport failures
	Message   string        // service-provided or synthesized message
	Err       error         // wrapped cause, may carry a sentinel
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: %s (status=%d category=%s)",
			e.Service, e.Operation, e.Message, e.Status, e.Category)
	}
	return fmt.Sprintf("%s %s: %s (category=%s)", e.Service, e.Operation, e.Message, e.Category)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError builds an APIError and derives Retryable from the category.
func NewAPIError(service, operation string, category ErrorCategory, status int, message string, err error) *APIError {
	return &APIError{
		Service:   service,
		Operation: operation,
		Category:  category,
		Status:    status,
		Message:   message,
		Err:       err,
		Retryable: retryableCategories[category],
	}
}

// ClassifyStatus maps an HTTP response status onto an error category.
func ClassifyStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusRequestTimeout:
		return CategoryTimeout
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status >= 500:
		return CategoryOutage
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusPaymentRequired:
		return CategoryPlan
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status >= 400:
		return CategoryBadRequest
	default:
		return CategoryInternal
	}
}

// ClassifyTransport maps a failed round-trip (no response) onto a category.
func ClassifyTransport(err error) ErrorCategory {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	return CategoryOutage
}

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// Category extracts the taxonomy bucket from a gateway error.
func Category(err error) ErrorCategory {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategoryInternal
}
