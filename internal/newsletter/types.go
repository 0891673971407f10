// Package newsletter implements the subscription intake pipeline: payload
// validation, per-client sliding-window admission, honeypot detection,
// backend resolution and outcome mapping.
package newsletter

import "context"

// Status is the provider-agnostic subscription state returned to callers.
type Status string

const (
	StatusPending           Status = "pending"
	StatusSubscribed        Status = "subscribed"
	StatusAlreadySubscribed Status = "already_subscribed"
)

// Provider identifiers reported in outcomes that were not produced by a real backend.
const (
	ProviderHoneypot = "honeypot"
	ProviderTest     = "test"
)

// Request is the normalized subscription request forwarded to a backend.
// Empty Source/Ref and a nil Tags slice mean the field was not provided.
type Request struct {
	Email       string   `json:"email"`
	Source      string   `json:"source,omitempty"`
	Ref         string   `json:"ref,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	DoubleOptIn *bool    `json:"doubleOptIn,omitempty"`
}

// WantsDoubleOptIn reports whether the caller explicitly asked for double opt-in.
func (r Request) WantsDoubleOptIn() bool {
	return r.DoubleOptIn != nil && *r.DoubleOptIn
}

// Submission is a validated request plus the derived honeypot signal.
// HoneypotHit never leaves this package's pipeline.
type Submission struct {
	Request
	HoneypotHit bool `json:"-"`
}

// Outcome is the canonical result of a subscription attempt.
type Outcome struct {
	Status     Status `json:"status"`
	Provider   string `json:"provider"`
	Idempotent bool   `json:"idempotent"`
}

// Subscriber is implemented by every backend adapter. Implementations make a
// single attempt and must not log the email address.
type Subscriber interface {
	Name() string
	Subscribe(ctx context.Context, req Request) (Outcome, error)
}
