package provider

import (
	"errors"
	"fmt"
)

// Error codes for categorizing provider failures.
const (
	ErrCodeAuth      = "AUTH_ERROR"
	ErrCodeRateLimit = "RATE_LIMIT_ERROR"
	ErrCodeNetwork   = "NETWORK_ERROR"
	ErrCodeParse     = "PARSE_ERROR"
	ErrCodeSearch    = "SEARCH_ERROR"
)

// Error is a categorized failure from a provider operation. Failures of this
// kind are isolated inside the aggregator and never surface per-provider.
type Error struct {
	Code      string
	Source    Source
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Source, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrAuth      = &Error{Code: ErrCodeAuth, Message: "authentication failed"}
	ErrRateLimit = &Error{Code: ErrCodeRateLimit, Message: "rate limit exceeded"}
	ErrNetwork   = &Error{Code: ErrCodeNetwork, Message: "network error"}
	ErrParse     = &Error{Code: ErrCodeParse, Message: "parse error"}
	ErrSearch    = &Error{Code: ErrCodeSearch, Message: "search failed"}
)

// NewAuthError creates an authentication error for a provider.
func NewAuthError(source Source, cause error) *Error {
	return &Error{Code: ErrCodeAuth, Source: source, Message: "authentication failed", Cause: cause}
}

// NewRateLimitError creates a rate limit error for a provider.
func NewRateLimitError(source Source) *Error {
	return &Error{Code: ErrCodeRateLimit, Source: source, Message: "rate limit exceeded", Retryable: true}
}

// NewNetworkError creates a network error for a provider.
func NewNetworkError(source Source, cause error) *Error {
	return &Error{Code: ErrCodeNetwork, Source: source, Message: "network error", Retryable: true, Cause: cause}
}

// NewParseError creates a parsing error for a provider.
func NewParseError(source Source, message string, cause error) *Error {
	return &Error{Code: ErrCodeParse, Source: source, Message: message, Cause: cause}
}

// NewSearchError creates a search error for a provider.
func NewSearchError(source Source, cause error) *Error {
	return &Error{Code: ErrCodeSearch, Source: source, Message: "search failed", Retryable: true, Cause: cause}
}

// IsRateLimit reports whether err is a rate limit error.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
