package common

import (
	"fmt"
	"strings"
	"time"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.Resource, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError indicates invalid input data. It carries every field
// violation found, not just the first one.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// NewValidationError creates a ValidationError from one or more field errors.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// NewFieldValidationError creates a ValidationError for a single field.
func NewFieldValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// UnauthorizedError indicates missing or invalid authentication.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

// RateLimitError indicates the caller must back off before retrying.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded"
	}
	return e.Message
}

// NewRateLimitError creates a new RateLimitError with a retry-after hint.
func NewRateLimitError(message string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Message: message, RetryAfter: retryAfter}
}

// ProviderErrorKind classifies an external provider failure.
type ProviderErrorKind string

const (
	// ProviderTransient marks failures likely to resolve on retry:
	// throttling, timeouts, network errors, provider 5xx.
	ProviderTransient ProviderErrorKind = "transient"

	// ProviderTerminal marks failures retrying cannot fix:
	// permanently invalid recipients or rejected content.
	ProviderTerminal ProviderErrorKind = "terminal"
)

// ProviderError indicates an external delivery provider failure,
// normalized into a retryable/non-retryable kind.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Kind, e.Message)
}

// Retryable reports whether the failure is worth retrying.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderTransient
}

// NewProviderTransientError creates a retryable provider error.
func NewProviderTransientError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderTransient, Message: message}
}

// NewProviderTerminalError creates a non-retryable provider error.
func NewProviderTerminalError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderTerminal, Message: message}
}

// InvalidTransitionError indicates a disallowed notification status change.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// NewInvalidTransitionError creates a new InvalidTransitionError.
func NewInvalidTransitionError(from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}
