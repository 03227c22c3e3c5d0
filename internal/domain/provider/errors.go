package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the provider error taxonomy carried across the gateway
// boundary.
type ErrorCode string

const (
	ErrAuthFailure        ErrorCode = "AUTH_FAILURE"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrBadRequest         ErrorCode = "BAD_REQUEST"
	ErrProviderError      ErrorCode = "PROVIDER_ERROR"
)

// Error is a categorized provider failure. Only TIMEOUT,
// SERVICE_UNAVAILABLE and generic PROVIDER_ERROR are retryable;
// RATE_LIMITED is surfaced so the executor can fall back instead.
type Error struct {
	Code       ErrorCode     `json:"code"`
	ProviderID string        `json:"provider_id"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Cause      error         `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %s: %s: %v", e.ProviderID, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.ProviderID, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the executor may retry the same provider.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrTimeout, ErrServiceUnavailable, ErrProviderError:
		return true
	default:
		return false
	}
}

// NewError builds a categorized provider error.
func NewError(code ErrorCode, providerID, message string) *Error {
	return &Error{Code: code, ProviderID: providerID, Message: message}
}

// NewRateLimitedError carries the provider's retry-after hint.
func NewRateLimitedError(providerID string, retryAfter time.Duration) *Error {
	return &Error{
		Code:       ErrRateLimited,
		ProviderID: providerID,
		Message:    "provider rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// WithCause attaches the underlying transport error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, defaulting to PROVIDER_ERROR
// for uncategorized failures.
func CodeOf(err error) ErrorCode {
	if pe, ok := AsError(err); ok {
		return pe.Code
	}
	return ErrProviderError
}
