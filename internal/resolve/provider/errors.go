package provider

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized provider failure taxonomy.
type ErrorCategory string

const (
	// ErrorTimeout indicates the provider took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the provider returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorOutage indicates the provider is unavailable
	ErrorOutage ErrorCategory = "outage"

	// ErrorNotFound indicates the identifier is unknown to the provider
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps provider failures with normalized categorization so
// the matcher can decide between retry, circuit-breaker bookkeeping, and a
// plain decline.
type ProviderError struct {
	Category   ErrorCategory
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("person lookup [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("person lookup [%s]: %s", e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a normalized provider error. Timeouts, outages,
// and rate limits are retryable; not-found and bad data are not.
func NewProviderError(category ErrorCategory, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited

	return &ProviderError{
		Category:   category,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsNotFound checks for the unknown-identifier case, which is a tier
// decline rather than a dependency failure.
func IsNotFound(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category == ErrorNotFound
	}
	return false
}
