// Package ghost implements the Ghost members subscription adapter.
package ghost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/provider/driver"
)

const (
	providerName = "ghost"

	membersPath   = "/ghost/api/admin/members/"
	acceptVersion = "v5.0"
	tokenAudience = "/admin/"
	tokenTTL      = 5 * time.Minute

	// maxErrorBody caps how much of an error response is inspected.
	maxErrorBody = 16 * 1024
)

// Client creates Ghost members through the Admin API. Without an Admin API
// key it runs in simulated mode and makes no network calls.
type Client struct {
	APIURL       string
	AdminAPIKey  string
	NewsletterID string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Clock        func() time.Time
}

// NewClient returns a client with inputs trimmed.
func NewClient(apiURL, adminAPIKey, newsletterID string) *Client {
	return &Client{
		APIURL:       strings.TrimSpace(apiURL),
		AdminAPIKey:  strings.TrimSpace(adminAPIKey),
		NewsletterID: strings.TrimSpace(newsletterID),
	}
}

// Name returns the adapter identifier.
func (c *Client) Name() string {
	return providerName
}

// Simulated reports whether the client answers without calling Ghost.
func (c *Client) Simulated() bool {
	return c == nil || c.AdminAPIKey == ""
}

type memberNewsletter struct {
	ID string `json:"id"`
}

type member struct {
	Email       string             `json:"email"`
	Labels      []string           `json:"labels,omitempty"`
	Newsletters []memberNewsletter `json:"newsletters,omitempty"`
}

type membersRequest struct {
	Members []member `json:"members"`
}

// Subscribe creates a member, or simulates the result in content-key-only mode.
func (c *Client) Subscribe(ctx context.Context, req newsletter.Request) (newsletter.Outcome, error) {
	if c.Simulated() {
		return simulatedOutcome(req), nil
	}
	if c.APIURL == "" {
		return newsletter.Outcome{}, &driver.ProviderError{Provider: providerName, Message: "api url is required"}
	}

	token, err := c.adminToken()
	if err != nil {
		return newsletter.Outcome{}, err
	}

	m := member{Email: req.Email, Labels: req.Tags}
	if c.NewsletterID != "" {
		m.Newsletters = []memberNewsletter{{ID: c.NewsletterID}}
	}
	body, err := json.Marshal(membersRequest{Members: []member{m}})
	if err != nil {
		return newsletter.Outcome{}, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.membersURL(req.WantsDoubleOptIn()), bytes.NewReader(body))
	if err != nil {
		return newsletter.Outcome{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Ghost "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept-Version", acceptVersion)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return newsletter.Outcome{}, &driver.ProviderError{Provider: providerName, Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		_, _ = io.Copy(io.Discard, resp.Body)
		status := newsletter.StatusSubscribed
		if req.WantsDoubleOptIn() {
			status = newsletter.StatusPending
		}
		return newsletter.Outcome{Status: status, Provider: providerName, Idempotent: false}, nil
	case http.StatusConflict:
		_, _ = io.Copy(io.Discard, resp.Body)
		return alreadySubscribed(), nil
	case http.StatusUnprocessableEntity:
		if memberExists(resp.Body) {
			return alreadySubscribed(), nil
		}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	return newsletter.Outcome{}, &driver.ProviderError{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Message:    "unexpected status",
	}
}

func (c *Client) membersURL(doubleOptIn bool) string {
	endpoint := strings.TrimRight(c.APIURL, "/") + membersPath
	if !doubleOptIn {
		return endpoint
	}
	query := url.Values{}
	query.Set("send_email", "true")
	query.Set("email_type", "signup")
	return endpoint + "?" + query.Encode()
}

// adminToken signs a short-lived Admin API token from an "<id>:<hex secret>" key.
func (c *Client) adminToken() (string, error) {
	id, secretHex, ok := strings.Cut(c.AdminAPIKey, ":")
	if !ok || id == "" || secretHex == "" {
		return "", &driver.ProviderError{Provider: providerName, Message: "invalid admin api key"}
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", &driver.ProviderError{Provider: providerName, Message: "invalid admin api key secret"}
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
		"aud": tokenAudience,
	})
	token.Header["kid"] = id

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

func (c *Client) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

type ghostErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Context string `json:"context"`
		Type    string `json:"type"`
	} `json:"errors"`
}

// memberExists reports whether a 422 body describes a duplicate member.
func memberExists(body io.Reader) bool {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return false
	}
	var parsed ghostErrors
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false
	}
	for _, e := range parsed.Errors {
		text := strings.ToLower(e.Message + " " + e.Context)
		if strings.Contains(text, "already exists") {
			return true
		}
	}
	return false
}

func alreadySubscribed() newsletter.Outcome {
	return newsletter.Outcome{Status: newsletter.StatusAlreadySubscribed, Provider: providerName, Idempotent: true}
}

func simulatedOutcome(req newsletter.Request) newsletter.Outcome {
	status := newsletter.StatusSubscribed
	if req.WantsDoubleOptIn() {
		status = newsletter.StatusPending
	}
	return newsletter.Outcome{Status: status, Provider: providerName, Idempotent: false}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
