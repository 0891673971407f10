package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artofficial/intake/internal/journal"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/provider"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]int{"entries": 2}))
	require.Equal(t, "{\n  \"entries\": 2\n}\n", buf.String())
}

func TestProvidersTable(t *testing.T) {
	rendered := ProvidersTable([]provider.BackendStatus{
		{Backend: newsletter.BackendGhost, Configured: false, Mode: "simulated", Breaker: "closed"},
		{Backend: newsletter.BackendConvertKit, Configured: true, Selected: true, Mode: "forms-api", Breaker: "closed"},
	})

	require.Contains(t, rendered, "ghost")
	require.Contains(t, rendered, "forms-api")
	require.Contains(t, rendered, "resolved: convertkit")
}

func TestProvidersTableWithoutSelection(t *testing.T) {
	rendered := ProvidersTable([]provider.BackendStatus{
		{Backend: newsletter.BackendGhost},
	})
	require.Contains(t, rendered, "resolved: none")
}

func TestJournalTable(t *testing.T) {
	rendered := JournalTable([]journal.Entry{
		{
			RequestID:  "req_1",
			Outcome:    journal.OutcomeError,
			ErrorCode:  "RATE_LIMITED",
			HTTPStatus: 429,
			CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})

	require.Contains(t, rendered, "req_1")
	require.Contains(t, rendered, "RATE_LIMITED")
	require.Contains(t, rendered, "2026-03-01T12:00:00Z")
	require.Contains(t, rendered, "429")
}

func TestRequestTable(t *testing.T) {
	optIn := true
	rendered := RequestTable(newsletter.Request{
		Email:       "reader@example.com",
		Tags:        []string{"go", "infra"},
		DoubleOptIn: &optIn,
	})

	require.Contains(t, rendered, "reader@example.com")
	require.Contains(t, rendered, "go, infra")
	require.Contains(t, rendered, "true")
}
