package osu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

const (
	defaultBaseURL = "https://osu.ppy.sh"

	tokenEndpoint  = "/oauth/token"
	scoresEndpoint = "/api/v2/scores"

	// osu! allows ~60 req/min for client credentials; stay under it
	requestsPerMinute = 50

	defaultRequestTimeout = 30 * time.Second
)

// Auth sentinel errors. The poll loop uses these to decide between
// reauthenticating and skipping a subject.
var (
	ErrTokenExpired   = errors.New("token expired (401)")
	ErrTokenForbidden = errors.New("token forbidden (403)")
)

// IsAuthError checks if an error indicates a rejected bearer token.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenForbidden)
}

// Client is a rate-limited osu! API v2 client holding the session's
// bearer token.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client

	mu     sync.Mutex
	token  string
	window []time.Time // requests in the last minute
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new osu! API client with the given credentials.
func NewClient(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		window: make([]time.Time, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate obtains a bearer token via the client credentials grant
// and stores it for subsequent requests.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {"public"},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+tokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token endpoint returned empty access_token")
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()
	return nil
}

// RecentScores fetches the global score feed filtered by ruleset.
// The endpoint may wrap the list in a {"scores": [...]} envelope.
func (c *Client) RecentScores(ctx context.Context, ruleset string) ([]Score, error) {
	u := fmt.Sprintf("%s%s?ruleset=%s", c.baseURL, scoresEndpoint, url.QueryEscape(ruleset))
	return c.fetchScores(ctx, u)
}

// UserScores fetches one subject's score feed. feed is one of
// "recent", "best" or "firsts".
func (c *Client) UserScores(ctx context.Context, userID int64, feed string) ([]Score, error) {
	u := fmt.Sprintf("%s/api/v2/users/%d/scores/%s?limit=50", c.baseURL, userID, url.PathEscape(feed))
	return c.fetchScores(ctx, u)
}

// fetchScores performs a GET and unwraps whichever shape the endpoint
// returned: a bare array or a {"scores": [...]} envelope.
func (c *Client) fetchScores(ctx context.Context, url string) ([]Score, error) {
	var body any
	if err := c.doRequest(ctx, url, &body); err != nil {
		return nil, err
	}

	var raw []any
	switch v := body.(type) {
	case []any:
		raw = v
	case map[string]any:
		inner, ok := v["scores"].([]any)
		if !ok {
			return nil, nil
		}
		raw = inner
	default:
		return nil, nil
	}

	scores := make([]Score, 0, len(raw))
	for _, item := range raw {
		if rec, ok := item.(map[string]any); ok {
			scores = append(scores, Score(rec))
		}
	}
	return scores, nil
}

// doRequest makes a rate-limited authenticated GET, decoding the body
// with numbers preserved as json.Number.
func (c *Client) doRequest(ctx context.Context, url string, result *any) error {
	if err := c.waitForRateLimit(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		return dec.Decode(result)

	case http.StatusTooManyRequests:
		waitTime := 10
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			fmt.Sscanf(retryAfter, "%d", &waitTime)
		}
		fmt.Printf("      [429 Rate Limited] Waiting %d seconds...\n", waitTime)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(waitTime) * time.Second):
		}
		return c.doRequest(ctx, url, result)

	case http.StatusUnauthorized:
		return fmt.Errorf("GET %s: %w", url, ErrTokenExpired)

	case http.StatusForbidden:
		return fmt.Errorf("GET %s: %w", url, ErrTokenForbidden)

	default:
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
}

// waitForRateLimit blocks until we can make another request.
func (c *Client) waitForRateLimit(ctx context.Context) error {
	for {
		c.mu.Lock()
		now := time.Now()
		oneMinuteAgo := now.Add(-1 * time.Minute)

		// Drop entries older than the window
		fresh := make([]time.Time, 0, len(c.window))
		for _, t := range c.window {
			if t.After(oneMinuteAgo) {
				fresh = append(fresh, t)
			}
		}
		c.window = fresh

		if len(c.window) < requestsPerMinute {
			c.window = append(c.window, now)
			c.mu.Unlock()
			return nil
		}

		waitTime := c.window[0].Add(time.Minute).Sub(now) + 100*time.Millisecond
		c.mu.Unlock()
		fmt.Printf("      [Rate limit] %d req/min, waiting %.1fs...\n", requestsPerMinute, waitTime.Seconds())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}
