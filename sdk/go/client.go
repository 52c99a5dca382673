// Package sdk provides typed Go access to the incentive HTTP + WebSocket API.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"incentivekit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the incentive HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL
// (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// ProcessReview runs reward processing for a confirmed review. The returned
// Outcome carries per-stage results even when processing was rejected
// (duplicate review, missing review); inspect Outcome.Success and
// Outcome.Error.
func (c *Client) ProcessReview(ctx context.Context, userID core.UserID, reviewID, orderID int64) (core.Outcome, error) {
	if userID <= 0 {
		return core.Outcome{}, ErrInvalidUserID
	}
	u, err := url.Parse(fmt.Sprintf("%s/reviews/%d/process", c.baseURL, reviewID))
	if err != nil {
		return core.Outcome{}, err
	}
	q := u.Query()
	q.Set("user_id", fmt.Sprintf("%d", userID))
	if orderID > 0 {
		q.Set("order_id", fmt.Sprintf("%d", orderID))
	}
	u.RawQuery = q.Encode()
	return c.postOutcome(ctx, u.String())
}

// CompleteOrder applies the order-completion reward for a user.
func (c *Client) CompleteOrder(ctx context.Context, userID core.UserID, orderID int64) (core.Outcome, error) {
	if userID <= 0 {
		return core.Outcome{}, ErrInvalidUserID
	}
	u := fmt.Sprintf("%s/orders/%d/complete?user_id=%d", c.baseURL, orderID, userID)
	return c.postOutcome(ctx, u)
}

func (c *Client) postOutcome(ctx context.Context, u string) (core.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return core.Outcome{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Outcome{}, err
	}
	defer resp.Body.Close()

	// Conflict and unprocessable responses still carry an Outcome body.
	var out core.Outcome
	if err := decodeOutcome(resp, &out); err != nil {
		return core.Outcome{}, err
	}
	return out, nil
}

// GetUser fetches the stored incentive state for a user.
func (c *Client) GetUser(ctx context.Context, userID core.UserID) (UserState, error) {
	if userID <= 0 {
		return UserState{}, ErrInvalidUserID
	}
	var st UserState
	err := c.getJSON(ctx, fmt.Sprintf("%s/users/%d", c.baseURL, userID), &st)
	return st, err
}

// GetUserStats fetches the live statistics snapshot used for badge triggers.
func (c *Client) GetUserStats(ctx context.Context, userID core.UserID) (UserStats, error) {
	if userID <= 0 {
		return UserStats{}, ErrInvalidUserID
	}
	var stats UserStats
	err := c.getJSON(ctx, fmt.Sprintf("%s/users/%d/stats", c.baseURL, userID), &stats)
	return stats, err
}

// Leaderboard returns the top n users by points.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := c.getJSON(ctx, fmt.Sprintf("%s/leaderboard?n=%d", c.baseURL, n), &entries)
	return entries, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.getJSON(ctx, c.baseURL+"/healthz", &hs)
	return hs, err
}

func (c *Client) getJSON(ctx context.Context, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event
// values. A zero userID subscribes to all users' events; a positive one
// narrows the stream to that user. The returned channel closes when ctx is
// done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, userID core.UserID) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	wsURL := c.wsURL
	if userID > 0 {
		wsURL = fmt.Sprintf("%s?user_id=%d", wsURL, userID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
