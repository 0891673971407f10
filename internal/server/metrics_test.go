package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artofficial/intake/internal/config"
	apperrors "github.com/artofficial/intake/internal/errors"
	"github.com/artofficial/intake/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func withExporter(t *testing.T) {
	t.Helper()
	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
	t.Cleanup(func() {
		observability.PrometheusExporter = nil
	})
}

func withProxyTransport(t *testing.T, fn roundTripFunc) {
	t.Helper()
	original := metricsProxyClient
	metricsProxyClient = &http.Client{Transport: fn}
	t.Cleanup(func() {
		metricsProxyClient = original
	})
}

func TestMetricsHandlerProxiesPrometheusOutput(t *testing.T) {
	withProxyTransport(t, func(req *http.Request) (*http.Response, error) {
		body := "# HELP newsletter_submissions_total Accepted submissions\nnewsletter_submissions_total 1\n"
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}
		resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
		resp.Header.Set("Connection", "close")
		return resp, nil
	})
	withExporter(t)

	srv := New(config.ServerConfig{Host: "127.0.0.1"}, Deps{MetricsPort: 9191})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Contains(t, rec.Body.String(), "newsletter_submissions_total")
}

func TestMetricsHandlerReturnsServiceUnavailableWithoutExporter(t *testing.T) {
	observability.PrometheusExporter = nil

	srv := New(config.ServerConfig{Host: "127.0.0.1"}, Deps{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error)
	assert.False(t, resp.Success)
}

func TestMetricsHandlerReportsUnreachableExporter(t *testing.T) {
	withProxyTransport(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	withExporter(t)

	srv := New(config.ServerConfig{Host: "127.0.0.1"}, Deps{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", resp.Error)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
