// Package provider assembles the subscription backend adapters from
// configuration and guards them with per-backend circuit breakers.
package provider

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/artofficial/intake/internal/config"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/provider/convertkit"
	"github.com/artofficial/intake/internal/provider/ghost"
)

// Registry builds adapters for resolved backends. Adapters are rebuilt from
// the current config on every call; breakers live as long as the registry.
type Registry struct {
	cfg        *config.Config
	httpClient *http.Client

	mu       sync.Mutex
	breakers map[newsletter.Backend]*gobreaker.CircuitBreaker
}

// Option customizes a Registry.
type Option func(*Registry)

// WithHTTPClient sets the HTTP client used by network adapters.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) {
		r.httpClient = client
	}
}

// NewRegistry returns a registry over cfg.
func NewRegistry(cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		breakers: make(map[newsletter.Backend]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscriber returns the adapter for backend.
func (r *Registry) Subscriber(backend newsletter.Backend) (newsletter.Subscriber, error) {
	if r == nil || r.cfg == nil {
		return nil, fmt.Errorf("provider registry not configured")
	}

	adapter, err := r.adapterFor(backend)
	if err != nil {
		return nil, err
	}

	if !r.cfg.Newsletter.Breaker.Enabled {
		return adapter, nil
	}
	return &breakerSubscriber{next: adapter, cb: r.breakerFor(backend)}, nil
}

func (r *Registry) adapterFor(backend newsletter.Backend) (newsletter.Subscriber, error) {
	switch backend {
	case newsletter.BackendGhost:
		g := r.cfg.Ghost
		client := ghost.NewClient(g.APIURL, g.AdminAPIKey, g.NewsletterID)
		client.HTTPClient = r.httpClient
		return client, nil
	case newsletter.BackendConvertKit:
		ck := r.cfg.ConvertKit
		client := convertkit.NewClient(ck.APIBase, ck.APIKey, ck.FormID)
		client.HTTPClient = r.httpClient
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", backend)
	}
}

func (r *Registry) breakerFor(backend newsletter.Backend) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[backend]; ok {
		return cb
	}
	bc := r.cfg.Newsletter.Breaker
	cb := newBreaker(string(backend), bc.MaxFailures, bc.OpenTimeout)
	r.breakers[backend] = cb
	return cb
}

// BackendStatus summarizes one backend for diagnostics.
type BackendStatus struct {
	Backend    newsletter.Backend `json:"backend"`
	Configured bool               `json:"configured"`
	Selected   bool               `json:"selected"`
	Mode       string             `json:"mode"`
	Breaker    string             `json:"breaker"`
}

// Status reports credential detection, the resolved backend and breaker state.
// It never includes credential values.
func (r *Registry) Status() []BackendStatus {
	if r == nil || r.cfg == nil {
		return nil
	}

	pc := newsletter.DetectCredentials(r.cfg)
	selected := newsletter.Resolve(pc)

	out := make([]BackendStatus, 0, len(newsletter.Backends()))
	for _, backend := range newsletter.Backends() {
		status := BackendStatus{
			Backend:    backend,
			Configured: pc.Available[backend],
			Selected:   backend == selected,
			Mode:       r.mode(backend),
			Breaker:    "disabled",
		}
		if r.cfg.Newsletter.Breaker.Enabled {
			status.Breaker = r.breakerState(backend)
		}
		out = append(out, status)
	}
	return out
}

func (r *Registry) mode(backend newsletter.Backend) string {
	switch backend {
	case newsletter.BackendGhost:
		if ghost.NewClient(r.cfg.Ghost.APIURL, r.cfg.Ghost.AdminAPIKey, "").Simulated() {
			return "simulated"
		}
		return "admin-api"
	case newsletter.BackendConvertKit:
		if r.cfg.ConvertKit.FormID == "" {
			return "missing-form-id"
		}
		return "forms-api"
	default:
		return ""
	}
}

func (r *Registry) breakerState(backend newsletter.Backend) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[backend]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}
