// Package convertkit implements the ConvertKit form subscription adapter.
package convertkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/provider/driver"
)

const (
	providerName   = "convertkit"
	defaultBaseURL = "https://api.convertkit.com"
)

// Client subscribes addresses to a ConvertKit form via the v3 API.
type Client struct {
	BaseURL    string
	APIKey     string
	FormID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey, formID string) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		BaseURL: base,
		APIKey:  strings.TrimSpace(apiKey),
		FormID:  strings.TrimSpace(formID),
	}
}

// Name returns the adapter identifier.
func (c *Client) Name() string {
	return providerName
}

type subscribeFields struct {
	Source      string `json:"source"`
	Ref         string `json:"ref"`
	Tags        string `json:"tags"`
	DoubleOptIn string `json:"double_opt_in"`
}

type subscribeRequest struct {
	APIKey string          `json:"api_key"`
	Email  string          `json:"email"`
	Fields subscribeFields `json:"fields"`
}

// Subscribe sends one form subscription request.
func (c *Client) Subscribe(ctx context.Context, req newsletter.Request) (newsletter.Outcome, error) {
	if c == nil {
		return newsletter.Outcome{}, fmt.Errorf("convertkit client: %w", driver.ErrNotConfigured)
	}
	if c.APIKey == "" {
		return newsletter.Outcome{}, &driver.ProviderError{Provider: providerName, Message: "api key is required"}
	}
	if c.FormID == "" {
		return newsletter.Outcome{}, &driver.ProviderError{Provider: providerName, Message: "form id is required"}
	}

	doubleOptIn := "false"
	if req.WantsDoubleOptIn() {
		doubleOptIn = "true"
	}
	payload := subscribeRequest{
		APIKey: c.APIKey,
		Email:  req.Email,
		Fields: subscribeFields{
			Source:      req.Source,
			Ref:         req.Ref,
			Tags:        strings.Join(req.Tags, ","),
			DoubleOptIn: doubleOptIn,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return newsletter.Outcome{}, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v3/forms/" + url.PathEscape(c.FormID) + "/subscribe"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return newsletter.Outcome{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return newsletter.Outcome{}, &driver.ProviderError{Provider: providerName, Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup
	_, _ = io.Copy(io.Discard, resp.Body)

	return mapStatus(resp.StatusCode)
}

func mapStatus(code int) (newsletter.Outcome, error) {
	switch code {
	case http.StatusOK:
		return newsletter.Outcome{Status: newsletter.StatusSubscribed, Provider: providerName, Idempotent: true}, nil
	case http.StatusCreated:
		return newsletter.Outcome{Status: newsletter.StatusSubscribed, Provider: providerName, Idempotent: false}, nil
	case http.StatusAccepted:
		return newsletter.Outcome{Status: newsletter.StatusPending, Provider: providerName, Idempotent: false}, nil
	case http.StatusConflict:
		return newsletter.Outcome{Status: newsletter.StatusAlreadySubscribed, Provider: providerName, Idempotent: true}, nil
	default:
		return newsletter.Outcome{}, &driver.ProviderError{
			Provider:   providerName,
			StatusCode: code,
			Message:    "unexpected status",
		}
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
