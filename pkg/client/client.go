package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBusy is returned when the daemon rejects a request because a run is
// already in progress.
var ErrBusy = errors.New("update already in progress")

// Client talks to a relaunchr daemon.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	Insecure bool         // Skip TLS verification
	Token    string       // Sent as a bearer token when set
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8787/api",
		Timeout: 2 * time.Minute,
	}
}

// New creates a new relaunchr API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/status")
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Update asks the daemon to run the update flow in the background. It
// reports false without error when another run is already in progress.
func (c *Client) Update(ctx context.Context, force bool) (bool, error) {
	u := c.baseURL + "/update?force=" + strconv.FormatBool(force)
	var out updateResponse
	code, err := c.do(ctx, http.MethodPost, u, &out)
	if code == http.StatusConflict {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Accepted, nil
}

// Status returns the orchestrator phase, last run and running instances.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	_, err := c.do(ctx, http.MethodGet, c.baseURL+"/status", &st)
	return st, err
}

// Start launches the managed process and waits for the run to finish. A
// failed run is returned together with an error.
func (c *Client) Start(ctx context.Context) (Run, error) {
	return c.run(ctx, c.baseURL+"/start")
}

// Stop stops the managed process and waits for the run to finish.
func (c *Client) Stop(ctx context.Context) (Run, error) {
	return c.run(ctx, c.baseURL+"/stop")
}

// Logs returns up to limit recent log lines from the daemon. limit <= 0
// uses the daemon's default.
func (c *Client) Logs(ctx context.Context, limit int) ([]string, error) {
	u := c.baseURL + "/logs"
	if limit > 0 {
		u += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out logsResponse
	if _, err := c.do(ctx, http.MethodGet, u, &out); err != nil {
		return nil, err
	}
	return out.Lines, nil
}

func (c *Client) run(ctx context.Context, u string) (Run, error) {
	var r Run
	code, err := c.do(ctx, http.MethodPost, u, &r)
	if code == http.StatusInternalServerError && r.Outcome != "" {
		return r, fmt.Errorf("%s failed: %s", r.Action, r.Message)
	}
	return r, err
}

// do performs the request and decodes a JSON body into out. 2xx bodies and
// 500 bodies carrying a run are decoded; other statuses become errors.
func (c *Client) do(ctx context.Context, method, u string, out any) (int, error) {
	req, err := c.newRequest(ctx, method, u)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusInternalServerError:
		_ = json.Unmarshal(body, out)
	case resp.StatusCode == http.StatusConflict:
		return resp.StatusCode, ErrBusy
	}
	return resp.StatusCode, c.handleErrorResponse(resp.StatusCode, body)
}

func (c *Client) newRequest(ctx context.Context, method, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(code int, body []byte) error {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("API request failed", "status", code)
		return fmt.Errorf("HTTP %d", code)
	}
	c.logger.Error("API request failed", "error", errorResp.Error, "status", code)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
