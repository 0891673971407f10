package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artofficial/intake/internal/config"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/provider/driver"
)

func testConfig(ckBase string) *config.Config {
	return &config.Config{
		Newsletter: config.NewsletterConfig{
			RateLimitPerIP:     10,
			RateLimitWindowSec: 60,
			ProviderTimeout:    time.Second,
			Breaker: config.BreakerConfig{
				Enabled:     true,
				MaxFailures: 2,
				OpenTimeout: time.Minute,
			},
		},
		ConvertKit: config.ConvertKitConfig{APIKey: "k", FormID: "1", APIBase: ckBase},
	}
}

func TestRegistryBuildsAdapters(t *testing.T) {
	cfg := testConfig("")
	cfg.Newsletter.Breaker.Enabled = false
	cfg.Ghost = config.GhostConfig{APIURL: "https://blog.example.com", ContentAPIKey: "c"}

	reg := NewRegistry(cfg)

	sub, err := reg.Subscriber(newsletter.BackendGhost)
	require.NoError(t, err)
	require.Equal(t, "ghost", sub.Name())

	sub, err = reg.Subscriber(newsletter.BackendConvertKit)
	require.NoError(t, err)
	require.Equal(t, "convertkit", sub.Name())

	_, err = reg.Subscriber(newsletter.BackendNone)
	require.Error(t, err)
}

func TestRegistryBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	reg := NewRegistry(testConfig(server.URL), WithHTTPClient(server.Client()))
	sub, err := reg.Subscriber(newsletter.BackendConvertKit)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := sub.Subscribe(context.Background(), newsletter.Request{Email: "a@b.co"})
		require.Error(t, err)
	}
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// A fresh adapter for the same backend shares the open breaker.
	sub, err = reg.Subscriber(newsletter.BackendConvertKit)
	require.NoError(t, err)
	_, err = sub.Subscribe(context.Background(), newsletter.Request{Email: "a@b.co"})
	require.Error(t, err)

	var perr *driver.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Contains(t, perr.Message, "circuit breaker open")
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	for _, status := range reg.Status() {
		if status.Backend == newsletter.BackendConvertKit {
			require.Equal(t, "open", status.Breaker)
		}
	}
}

func TestRegistryBreakerPassesSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	reg := NewRegistry(testConfig(server.URL))
	sub, err := reg.Subscriber(newsletter.BackendConvertKit)
	require.NoError(t, err)

	outcome, err := sub.Subscribe(context.Background(), newsletter.Request{Email: "a@b.co"})
	require.NoError(t, err)
	require.Equal(t, newsletter.StatusAlreadySubscribed, outcome.Status)
	require.Equal(t, "convertkit", outcome.Provider)
}

func TestRegistryStatus(t *testing.T) {
	cfg := testConfig("")
	cfg.Ghost = config.GhostConfig{APIURL: "https://blog.example.com", ContentAPIKey: "c"}

	statuses := NewRegistry(cfg).Status()
	require.Len(t, statuses, 2)

	require.Equal(t, newsletter.BackendGhost, statuses[0].Backend)
	require.True(t, statuses[0].Configured)
	require.True(t, statuses[0].Selected)
	require.Equal(t, "simulated", statuses[0].Mode)
	require.Equal(t, "closed", statuses[0].Breaker)

	require.Equal(t, newsletter.BackendConvertKit, statuses[1].Backend)
	require.True(t, statuses[1].Configured)
	require.False(t, statuses[1].Selected)
	require.Equal(t, "forms-api", statuses[1].Mode)
}
