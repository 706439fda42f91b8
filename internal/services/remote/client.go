package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shipflow/internal/services"
)

const maxErrorBody = 512

// HTTPDoer describes the HTTP client used by collaborator calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues JSON requests against one collaborator base URL and maps
// failures onto the services error taxonomy.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	timeout time.Duration
	client  HTTPDoer
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithTimeout bounds every request made by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// NewClient constructs a client for the named collaborator.
func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collaborator name used in errors and logs.
func (c *Client) Name() string {
	return c.name
}

// Do sends method to path with an optional JSON body. Responses outside the
// 2xx range become *services.StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any) error {
	if c == nil || c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, c.label(), method, "base url not configured", nil)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, c.name, method, "encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.name, method, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, c.name, method, "request timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return services.Wrap(services.ErrTransient, c.name, method, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &services.StatusError{
			Service:    c.name,
			Method:     method,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) label() string {
	if c == nil {
		return "remote"
	}
	return c.name
}

// ShipmentPath renders "/shipments/<id><suffix>" with the id path-escaped.
func ShipmentPath(shipmentID, suffix string) string {
	return fmt.Sprintf("/shipments/%s%s", url.PathEscape(shipmentID), suffix)
}
