package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shipflow/internal/api"
	"shipflow/internal/config"
)

// errNoDaemonAPI means no monitoring API is configured to talk to.
var errNoDaemonAPI = errors.New("monitoring api not configured")

const apiRequestTimeout = 2 * time.Second

// apiStatusError is a non-2xx reply from the daemon.
type apiStatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *apiStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("daemon api %s %s: %s (%d)", e.Method, e.Path, e.Message, e.Status)
	}
	return fmt.Sprintf("daemon api %s %s: status %d", e.Method, e.Path, e.Status)
}

func isAPIStatus(err error, status int) bool {
	var statusErr *apiStatusError
	return errors.As(err, &statusErr) && statusErr.Status == status
}

type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func newAPIClient(cfg *config.Config) (*apiClient, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errNoDaemonAPI
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("api_bind %q: %w", bind, err)
	}
	if port == "0" {
		return nil, errNoDaemonAPI
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &apiClient{
		base:   "http://" + net.JoinHostPort(host, port),
		token:  cfg.Paths.APIToken,
		client: &http.Client{Timeout: apiRequestTimeout},
	}, nil
}

func (c *apiClient) status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", &out)
	return out, err
}

func (c *apiClient) wake(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/shipments/"+url.PathEscape(id)+"/wake", nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, &apiErr)
		return &apiStatusError{Method: method, Path: path, Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
