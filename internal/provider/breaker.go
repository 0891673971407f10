package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/artofficial/intake/internal/metrics"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/observability"
	"github.com/artofficial/intake/internal/provider/driver"
)

// newBreaker trips after maxFailures consecutive failed calls and stays open
// for openTimeout before letting a single probe through.
func newBreaker(name string, maxFailures int, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	threshold := safeIntToUint32(maxFailures)
	if threshold == 0 {
		threshold = 1
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.RecordBreakerStateChange(name, from.String(), to.String())
			if observability.ServerLogger != nil {
				observability.ServerLogger.Warn("Provider circuit breaker state change",
					zap.String("provider", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// breakerSubscriber guards a backend adapter with a circuit breaker.
type breakerSubscriber struct {
	next newsletter.Subscriber
	cb   *gobreaker.CircuitBreaker
}

func (b *breakerSubscriber) Name() string {
	return b.next.Name()
}

func (b *breakerSubscriber) Subscribe(ctx context.Context, req newsletter.Request) (newsletter.Outcome, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Subscribe(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return newsletter.Outcome{}, &driver.ProviderError{Provider: b.next.Name(), Message: "circuit breaker open"}
	}
	if err != nil {
		return newsletter.Outcome{}, err
	}
	outcome, ok := result.(newsletter.Outcome)
	if !ok {
		return newsletter.Outcome{}, &driver.ProviderError{Provider: b.next.Name(), Message: "unexpected adapter result"}
	}
	return outcome, nil
}
