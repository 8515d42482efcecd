package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"marketintel/internal/api"
	"marketintel/internal/config"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx response from the daemon API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon api: %d %s", e.StatusCode, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for the API configured in cfg.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL(), "/"),
		token:      strings.TrimSpace(cfg.Paths.APIToken),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dial returns a client once the daemon answers a status request.
func Dial(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.APIBaseURL() == "" {
		return nil, ErrDaemonNotRunning
	}
	client := NewClient(cfg)
	if _, err := client.Status(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit posts a request to the ingress endpoint.
func (c *Client) Submit(ctx context.Context, req payload.Request) (api.SubmitResult, error) {
	var out api.SubmitResult
	err := c.do(ctx, http.MethodPost, "/api/requests", req, &out)
	return out, err
}

// Report fetches the status report of one scope.
func (c *Client) Report(ctx context.Context, scope string) (api.ScopeReport, error) {
	var out api.ScopeReport
	err := c.do(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(scope), nil, &out)
	return out, err
}

// Tree lists every item of one scope.
func (c *Client) Tree(ctx context.Context, scope string) ([]api.QueueItem, error) {
	var out api.QueueListResponse
	err := c.do(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(scope)+"/items", nil, &out)
	return out.Items, err
}

// List returns queue items matching filter.
func (c *Client) List(ctx context.Context, filter queue.ListFilter) ([]api.QueueItem, error) {
	query := url.Values{}
	if filter.Stage != "" {
		query.Set("stage", string(filter.Stage))
	}
	for _, status := range filter.Statuses {
		query.Add("status", string(status))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/queue"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.QueueListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Items, err
}

// Stats returns queue counts by status.
func (c *Client) Stats(ctx context.Context) (map[string]int, error) {
	var out api.QueueStatsResponse
	err := c.do(ctx, http.MethodGet, "/api/queue/stats", nil, &out)
	return out.Counts, err
}

// Health returns database diagnostics.
func (c *Client) Health(ctx context.Context) (queue.DatabaseHealth, error) {
	var out queue.DatabaseHealth
	err := c.do(ctx, http.MethodGet, "/api/queue/health", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isDaemonUnavailable(err) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("daemon api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/api/requests/") {
		return api.ErrScopeNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		_ = json.Unmarshal(data, &apiErr)
		message := strings.TrimSpace(apiErr.Error)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
