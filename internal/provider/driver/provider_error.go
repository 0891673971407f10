// Package driver holds types shared by the subscription backend adapters.
package driver

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when an adapter lacks a required setting.
var ErrNotConfigured = errors.New("provider not configured")

// ProviderError is returned when a backend responds with an unexpected status.
//
// Message must be a short description; response bodies are not copied into it
// because they may echo the subscriber's address.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// ProviderName returns the backend identifier.
func (e *ProviderError) ProviderName() string {
	if e == nil {
		return ""
	}
	return e.Provider
}

// HTTPStatus returns the upstream status code, or 0 when no response arrived.
func (e *ProviderError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}
