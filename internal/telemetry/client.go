// Package telemetry fetches AI-attributed session metrics from the external
// telemetry collaborator.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoData indicates the collaborator has no metrics for the requested site
// and window. Callers treat this as "nothing measured", not as a failure.
var ErrNoData = errors.New("telemetry: no data for window")

// Metrics are the raw counts the score aggregator derives its
// telemetry-sourced subscores from.
type Metrics struct {
	TotalSessions int `json:"total_sessions"`
	AISessions    int `json:"ai_sessions"`
	AIConversions int `json:"ai_conversions"`
	VoiceQueries  int `json:"voice_queries"`
	VoiceMentions int `json:"voice_mentions"`
}

// Client talks to the telemetry collaborator over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a telemetry client for the given base URL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the site's metrics for the window. A 404 from the
// collaborator maps to ErrNoData.
func (c *Client) Fetch(ctx context.Context, siteID string, from, to time.Time) (Metrics, error) {
	endpoint := fmt.Sprintf("%s/v1/sites/%s/metrics?%s",
		c.baseURL, url.PathEscape(siteID),
		url.Values{
			"from": {from.UTC().Format(time.RFC3339)},
			"to":   {to.UTC().Format(time.RFC3339)},
		}.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metrics{}, eris.Wrap(err, "telemetry: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Metrics{}, eris.Wrap(err, "telemetry: fetch metrics")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Metrics{}, ErrNoData
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Metrics{}, eris.Errorf("telemetry: status %d: %s", resp.StatusCode, string(body))
	}

	var m Metrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Metrics{}, eris.Wrap(err, "telemetry: decode metrics")
	}
	return m, nil
}
