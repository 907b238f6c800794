package providers

import (
	"context"
	"errors"
	"fmt"

	"stampgate/internal/verification/models"
)

// ErrorCategory is the normalized failure taxonomy for external API calls.
//
// Every adapter classifies its failures into one of these so providers and the
// dispatcher treat GitHub, Facebook and the staking service uniformly.
type ErrorCategory string

const (
	// ErrorUnauthorized indicates a bad, expired or already-used token or code
	ErrorUnauthorized ErrorCategory = "unauthorized"

	// ErrorNotFound indicates the requested resource does not exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates the external system throttled us
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorUnreachable covers transport failures, timeouts and an open circuit
	ErrorUnreachable ErrorCategory = "unreachable"

	// ErrorUnexpectedStatus indicates a non-200 status outside the cases above
	ErrorUnexpectedStatus ErrorCategory = "unexpected_status"

	// ErrorBadData indicates a 200 response whose body does not have the documented shape
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorInternal indicates a local fault such as failing to build a request
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps an external call failure with its normalized category.
//
// Message must never contain tokens or codes. Underlying is kept for errors.Is and
// is not rendered by Describe.
type ProviderError struct {
	Category   ErrorCategory
	System     string
	Message    string
	StatusCode int
	Underlying error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.System, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.System, e.Category, e.Message)
}

// Unwrap supports error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// Transient reports whether a later, separate request might succeed.
// Nothing in this package retries; the flag is exposed for callers one layer up.
func (e *ProviderError) Transient() bool {
	return e.Category == ErrorUnreachable || e.Category == ErrorRateLimited
}

func NewProviderError(category ErrorCategory, system, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		System:     system,
		Message:    message,
		Underlying: underlying,
	}
}

// NewStatusError records an unexpected HTTP status.
func NewStatusError(system string, status int) *ProviderError {
	return &ProviderError{
		Category:   ErrorUnexpectedStatus,
		System:     system,
		Message:    fmt.Sprintf("unexpected status %d", status),
		StatusCode: status,
	}
}

// GetCategory extracts the category from err, or ErrorInternal when err is not a ProviderError.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorUnreachable
	}
	return ErrorInternal
}

// IsTransient checks if err is worth re-submitting in a later request.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// Describe renders err as a diagnostic safe to hand back to callers.
// Only the system, category and message are used, never the wrapped cause.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s: %s: %s", pe.System, pe.Category, pe.Message)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "verification timed out"
	case errors.Is(err, context.Canceled):
		return "verification cancelled"
	}
	return "verification failed"
}

// Fail converts err into a negative verification result.
func Fail(err error) models.VerifiedPayload {
	return models.Invalid(Describe(err))
}

// Dispatcher-level client errors. They carry no external call.
var (
	ErrUnknownType = errors.New("unknown provider type")
)

// MissingProof is the diagnostic for an absent required proof field.
func MissingProof(name string) string {
	return "missing proof field: " + name
}
