package metrics

import (
	"time"

	"github.com/artofficial/intake/internal/observability"
)

// Application-level metrics following Prometheus conventions
const (
	SubmissionsTotal       = "newsletter_submissions_total"
	RejectionsTotal        = "newsletter_rejections_total"
	ProviderDuration       = "newsletter_provider_duration_ms"
	BreakerStateChanges    = "newsletter_breaker_state_changes_total"
	JournalWriteErrorTotal = "newsletter_journal_write_errors_total"
	RateLimitClients       = "newsletter_rate_limit_clients"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordSubmission records a successful outcome by status and provider.
func RecordSubmission(status string, provider string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			SubmissionsTotal,
			1,
			map[string]string{
				"status":   status,
				"provider": provider,
			},
		)
	}
}

// RecordRejection records a failed submission by public error code.
func RecordRejection(code string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RejectionsTotal,
			1,
			map[string]string{
				"code": code,
			},
		)
	}
}

// RecordProviderDuration records how long a backend call took.
func RecordProviderDuration(provider string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			ProviderDuration,
			duration,
			map[string]string{
				"provider": provider,
			},
		)
	}
}

// RecordBreakerStateChange records a circuit breaker transition.
func RecordBreakerStateChange(provider string, from string, to string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BreakerStateChanges,
			1,
			map[string]string{
				"provider": provider,
				"from":     from,
				"to":       to,
			},
		)
	}
}

// RecordJournalWriteError records a failed outcome journal insert.
func RecordJournalWriteError() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			JournalWriteErrorTotal,
			1,
			nil,
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetRateLimitClients records how many client keys the admission window tracks.
func SetRateLimitClients(count int) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(RateLimitClients, float64(count), nil)
	}
}
