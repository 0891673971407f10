package newsletter

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories a submission can end in.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindRateLimited
	KindProviderUnavailable
	KindProviderError
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindProviderError:
		return "provider_error"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a categorized submission failure. Message is safe to show to callers
// for KindValidation only; other kinds are rendered with fixed messages.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func rateLimitedError(retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: "Rate limit exceeded", RetryAfter: retryAfter}
}

func providerUnavailableError() *Error {
	return &Error{Kind: KindProviderUnavailable, Message: "No newsletter provider configured"}
}

func providerError(backend Backend, err error) *Error {
	return &Error{Kind: KindProviderError, Message: fmt.Sprintf("%s subscribe failed", backend), Err: err}
}

// KindOf returns the Kind carried by err, or KindInternal when err is not a *Error.
func KindOf(err error) Kind {
	var nerr *Error
	if errors.As(err, &nerr) && nerr != nil {
		return nerr.Kind
	}
	return KindInternal
}
