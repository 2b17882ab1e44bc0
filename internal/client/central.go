// Package client is the simulator's HTTP client for the central API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iliyamo/smart-parking/internal/model"
)

// Config defines the client settings.
type Config struct {
	BaseURL string
	Token   string        // optional bearer token
	Timeout time.Duration // per request, default 10s
	RPS     float64       // status updates per second, default 5
	Burst   int           // default 5
}

// Central reads the spot registry and reports live spot status.  It
// satisfies spot.Reporter.
type Central struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCentral constructs a client with sane defaults.
func NewCentral(cfg Config) (*Central, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("central: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Central{
		baseURL:    strings.TrimRight(base, "/"),
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

type statusUpdate struct {
	Status model.SpotStatus `json:"status"`
}

type spotList struct {
	Records []model.Spot `json:"records"`
}

// SetSpotStatus PUTs the status of spotID.  Updates share one token bucket so
// a large fleet cannot flood the API.
func (c *Central) SetSpotStatus(ctx context.Context, spotID string, status model.SpotStatus) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("central: throttle: %w", err)
	}
	body, err := json.Marshal(statusUpdate{Status: status})
	if err != nil {
		return fmt.Errorf("central: encode: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/v1/spots/"+url.PathEscape(spotID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("central: set status: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("central: set status of spot %s: unexpected status %d", spotID, resp.StatusCode)
	}
	return nil
}

// ListSpots returns the registered spots, optionally only those on floor.
func (c *Central) ListSpots(ctx context.Context, floor *int) ([]model.Spot, error) {
	path := "/v1/spots"
	if floor != nil {
		path += "?floor_level=" + strconv.Itoa(*floor)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("central: list spots: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("central: list spots: unexpected status %d", resp.StatusCode)
	}
	var payload spotList
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("central: decode: %w", err)
	}
	return payload.Records, nil
}

func (c *Central) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("central: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}
