package ai

import (
	"context"
	"errors"
	"fmt"
)

// Provider failure classes.
var (
	ErrEmptyInput          = errors.New("empty input")
	ErrInputTooLarge       = errors.New("input too large")
	ErrAuthentication      = errors.New("authentication failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrTimeout             = errors.New("provider timeout")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnexpectedResponse  = errors.New("unexpected provider response")
)

// ProviderError is a classified embedding failure.
type ProviderError struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Retryable reports whether the same call may succeed later.
	Retryable bool
	Err       error
}

// NewProviderError classifies err under kind. Rate limits, timeouts and
// unavailability are retryable; everything else is not.
func NewProviderError(kind error, err error) *ProviderError {
	return &ProviderError{
		Kind:      kind,
		Retryable: kind == ErrRateLimited || kind == ErrTimeout || kind == ErrProviderUnavailable,
		Err:       err,
	}
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err is worth retrying.
// Unclassified errors are treated as transient; cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	if errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrInputTooLarge) || errors.Is(err, ErrAuthentication) {
		return false
	}
	return true
}
