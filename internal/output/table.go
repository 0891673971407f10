package output

import (
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/artofficial/intake/internal/journal"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/provider"
)

// ProvidersTable renders backend detection for `intake providers`.
func ProvidersTable(statuses []provider.BackendStatus) string {
	t := newTable()
	t.AppendHeader(table.Row{"Backend", "Configured", "Selected", "Mode", "Breaker"})

	selected := "none"
	for _, s := range statuses {
		t.AppendRow(table.Row{
			string(s.Backend),
			yesNo(s.Configured),
			marker(s.Selected),
			dash(s.Mode),
			dash(s.Breaker),
		})
		if s.Selected {
			selected = string(s.Backend)
		}
	}
	t.AppendFooter(table.Row{"", "", "resolved: " + selected, "", ""})
	return t.Render()
}

// JournalTable renders journal entries, newest first.
func JournalTable(entries []journal.Entry) string {
	t := newTable()
	t.AppendHeader(table.Row{"Time", "Request", "Outcome", "Provider", "Error", "HTTP"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.RequestID,
			e.Outcome,
			dash(e.Provider),
			dash(e.ErrorCode),
			strconv.Itoa(e.HTTPStatus),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "entries", strconv.Itoa(len(entries))})
	return t.Render()
}

// RequestTable renders a normalized request for `intake validate`.
func RequestTable(req newsletter.Request) string {
	t := newTable()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"email", req.Email})
	t.AppendRow(table.Row{"source", dash(req.Source)})
	t.AppendRow(table.Row{"ref", dash(req.Ref)})
	t.AppendRow(table.Row{"tags", dash(strings.Join(req.Tags, ", "))})
	doubleOptIn := "-"
	if req.DoubleOptIn != nil {
		doubleOptIn = strconv.FormatBool(*req.DoubleOptIn)
	}
	t.AppendRow(table.Row{"doubleOptIn", doubleOptIn})
	return t.Render()
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func marker(v bool) string {
	if v {
		return "*"
	}
	return ""
}

func dash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
