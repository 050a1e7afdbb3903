package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// UpstreamError reports a failed call to the partner API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("affiliate upstream returned %d: %s", e.Status, e.Body)
}

// Config holds the partner API credentials and endpoint.
type Config struct {
	BaseURL string
	AppID   string
	Secret  string
	Timeout time.Duration
}

// Client signs and sends GraphQL queries to the affiliate partner API.
// Requests are not retried; callers decide whether a failure is worth
// repeating.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Query POSTs a GraphQL body to the partner endpoint with the signature
// envelope and returns the decoded JSON response.
func (c *Client) Query(ctx context.Context, body []byte) (map[string]any, error) {
	ts := c.now().Unix()
	sig := Sign(c.cfg.AppID, ts, body, c.cfg.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build affiliate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", AuthorizationHeader(c.cfg.AppID, ts, sig))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("affiliate request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read affiliate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("affiliate upstream error",
			slog.Int("status", resp.StatusCode),
			slog.Int("body_bytes", len(raw)),
		)
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: "malformed JSON response"}
	}
	return decoded, nil
}

// SetClock overrides the timestamp source. Test hook.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}
