package newsletter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/artofficial/intake/internal/config"
	"github.com/artofficial/intake/internal/metrics"
	"github.com/artofficial/intake/internal/observability"
)

// DefaultProviderTimeout bounds a single backend call when none is configured.
const DefaultProviderTimeout = 5 * time.Second

// SubscriberSource hands out the adapter for a resolved backend.
type SubscriberSource interface {
	Subscriber(backend Backend) (Subscriber, error)
}

// Intake is one inbound submission as seen by the gate.
type Intake struct {
	ClientKey   string
	ContentType string
	Body        io.Reader
}

// Options configure a Service.
type Options struct {
	Config      *config.Config
	Subscribers SubscriberSource
	Clock       func() time.Time
}

// Service runs the intake pipeline. Its limiter and test-mode state live as
// long as the instance and are safe for concurrent use.
type Service struct {
	cfg         *config.Config
	subscribers SubscriberSource
	limiter     *SlidingWindow
	seen        seenSet
	timeout     time.Duration
	clock       func() time.Time
}

// NewService builds a Service from configuration.
func NewService(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("newsletter: config is required")
	}
	if opts.Subscribers == nil {
		return nil, errors.New("newsletter: subscriber source is required")
	}

	nc := opts.Config.Newsletter
	limit := RateLimit{
		RequestsPerWindow: nc.RateLimitPerIP,
		WindowDuration:    time.Duration(nc.RateLimitWindowSec) * time.Second,
	}

	timeout := nc.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	return &Service{
		cfg:         opts.Config,
		subscribers: opts.Subscribers,
		limiter:     NewSlidingWindow(limit, opts.Clock),
		timeout:     timeout,
		clock:       opts.Clock,
	}, nil
}

// TestMode reports whether deterministic test mode is active.
func (s *Service) TestMode() bool {
	return s != nil && s.cfg != nil && s.cfg.Newsletter.TestMode
}

// Submit runs one submission through admission, validation, honeypot and
// backend dispatch. Every returned error is a *Error.
func (s *Service) Submit(ctx context.Context, in Intake) (Outcome, error) {
	testMode := s.TestMode()

	if !testMode {
		allowed, retryAfter := s.limiter.Allow(in.ClientKey)
		metrics.SetRateLimitClients(s.limiter.Keys())
		if !allowed {
			return Outcome{}, rateLimitedError(retryAfter)
		}
	}

	if err := CheckContentType(in.ContentType); err != nil {
		return Outcome{}, err
	}

	raw, err := readBounded(in.Body)
	if err != nil {
		return Outcome{}, &Error{Kind: KindInternal, Message: "read request body", Err: err}
	}

	sub, err := ParsePayload(raw)
	if err != nil {
		return Outcome{}, err
	}

	if sub.HoneypotHit {
		return Outcome{Status: StatusPending, Provider: ProviderHoneypot, Idempotent: false}, nil
	}

	if testMode {
		return testModeOutcome(sub, s.seen.observe(sub.Email)), nil
	}

	backend := Resolve(DetectCredentials(s.cfg))
	if backend == BackendNone {
		return Outcome{}, providerUnavailableError()
	}

	return s.dispatch(ctx, backend, sub.Request)
}

func (s *Service) dispatch(ctx context.Context, backend Backend, req Request) (Outcome, error) {
	subscriber, err := s.subscribers.Subscriber(backend)
	if err != nil {
		logProviderFailure(backend, err)
		return Outcome{}, providerError(backend, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	outcome, err := subscriber.Subscribe(callCtx, req)
	metrics.RecordProviderDuration(string(backend), s.now().Sub(start))
	if err != nil {
		logProviderFailure(backend, err)
		return Outcome{}, providerError(backend, err)
	}
	if outcome.Provider == "" {
		outcome.Provider = subscriber.Name()
	}
	return outcome, nil
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func readBounded(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return raw, nil
}

func logProviderFailure(backend Backend, err error) {
	if observability.ServerLogger == nil {
		return
	}
	observability.ServerLogger.Warn("Newsletter provider call failed",
		zap.String("provider", string(backend)),
		zap.Error(err))
}
