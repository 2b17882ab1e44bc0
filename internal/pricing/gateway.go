// Package pricing talks to the external rate service.  The service quotes a
// per-minute rate for an instant; the gateway turns that into the total price
// of a reservation window.  Prices are never accepted from clients.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/smart-parking/internal/metrics"
)

// ErrUnavailable is returned when the rate lookup fails or yields an
// implausible rate.  Callers surface it as PricingUnavailableError.
var ErrUnavailable = errors.New("pricing unavailable")

type rateRequest struct {
	Timestamp string `json:"timestamp"`
}

type rateResponse struct {
	MinuteRate *float64 `json:"minute_rate"`
}

// Gateway quotes reservation prices from the rate service at BaseURL.
type Gateway struct {
	baseURL string
	client  *http.Client
	metrics *metrics.Metrics
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client (which has a 5s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithMetrics records lookup latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway returns a gateway for the rate service rooted at baseURL.
func NewGateway(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Quote returns the price of [start, end): the rate in effect at start times
// the number of started minutes, rounded to cents.
func (g *Gateway) Quote(ctx context.Context, start, end time.Time) (float64, error) {
	rate, err := g.MinuteRate(ctx, start)
	if err != nil {
		return 0, err
	}
	return Total(rate, end.Sub(start)), nil
}

// MinuteRate asks the rate service for the per-minute rate at instant at.
func (g *Gateway) MinuteRate(ctx context.Context, at time.Time) (float64, error) {
	if g.baseURL == "" {
		return 0, fmt.Errorf("%w: rate service url not configured", ErrUnavailable)
	}
	body, err := json.Marshal(rateRequest{Timestamp: at.UTC().Format(time.RFC3339)})
	if err != nil {
		return 0, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/calculate-rate", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := g.client.Do(req)
	g.metrics.ObservePricing(float64(time.Since(started).Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: rate service returned %d", ErrUnavailable, resp.StatusCode)
	}
	var out rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.MinuteRate == nil {
		return 0, fmt.Errorf("%w: response has no minute_rate", ErrUnavailable)
	}
	rate := *out.MinuteRate
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w: implausible minute rate %v", ErrUnavailable, rate)
	}
	return rate, nil
}

// Total bills every started minute of d at rate and rounds to two decimals.
func Total(rate float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	minutes := math.Ceil(d.Seconds() / 60)
	return math.Round(minutes*rate*100) / 100
}
