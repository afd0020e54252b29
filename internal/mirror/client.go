// Package mirror pushes zone changes to the perception service's zone cache.
// Delivery is best effort: failures are logged and recorded, never returned
// to the zone registry.
package mirror

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sentryline/pkg/models"
)

// Payload is the zone body the perception service accepts.
type Payload struct {
	ZoneID  string       `json:"zone_id"`
	Name    string       `json:"name"`
	Polygon [][2]float64 `json:"polygon"`
}

// PayloadFor converts a zone to its wire form.
func PayloadFor(z *models.Zone) Payload {
	poly := make([][2]float64, 0, len(z.Polygon))
	for _, p := range z.Polygon {
		poly = append(poly, [2]float64{p.X, p.Y})
	}
	return Payload{ZoneID: z.ID, Name: z.Name, Polygon: poly}
}

// Client delivers one zone operation to the remote side.
type Client interface {
	Create(ctx context.Context, p Payload) error
	Update(ctx context.Context, p Payload) error
	Delete(ctx context.Context, p Payload) error
}

// Config configures the HTTP client.
type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// HTTPClient talks to the perception service zone endpoints.
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient creates an HTTP client. Requests are never retried; the
// bulk resync is the recovery path.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mirror URL is empty")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid mirror URL %q: %w", cfg.URL, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers)

	return &HTTPClient{client: client}, nil
}

// Create posts a new zone.
func (c *HTTPClient) Create(ctx context.Context, p Payload) error {
	return c.do(ctx, resty.MethodPost, "/zones", p)
}

// Update replaces an existing zone.
func (c *HTTPClient) Update(ctx context.Context, p Payload) error {
	return c.do(ctx, resty.MethodPut, "/zones/"+url.PathEscape(p.ZoneID), p)
}

// Delete removes a zone.
func (c *HTTPClient) Delete(ctx context.Context, p Payload) error {
	return c.do(ctx, resty.MethodDelete, "/zones/"+url.PathEscape(p.ZoneID), p)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, p Payload) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(p).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status())
	}
	return nil
}

// NoopClient accepts every push; used when no mirror is configured.
type NoopClient struct{}

func (NoopClient) Create(ctx context.Context, p Payload) error { return nil }
func (NoopClient) Update(ctx context.Context, p Payload) error { return nil }
func (NoopClient) Delete(ctx context.Context, p Payload) error { return nil }
