// Package gh provides the GitHub GraphQL transport. It executes the batch
// queries built by the fetch layer, lists issues and discussions, resolves the
// current viewer, and reads saved project view filters.
package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/h0rv/rollup/internal/auth"
	"github.com/h0rv/rollup/internal/fetch"
	"github.com/h0rv/rollup/internal/logger"
	"github.com/machinebox/graphql"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the public GitHub GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// Client is a rate-limited GitHub GraphQL client.
type Client struct {
	gql     *graphql.Client
	limiter *rate.Limiter
	log     logger.Logger

	endpoint string
	base     http.RoundTripper
	rps      float64
	burst    int

	actorMu sync.Mutex
	actor   string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint (GitHub Enterprise, tests).
func WithEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// WithRateLimit paces requests to rps per second with the given burst.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rps = rps
		c.burst = burst
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithTransport sets the base HTTP transport under auth and throttle detection.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// New creates a Client authenticated by ts.
func New(ts oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	limit := rate.Inf
	if c.rps > 0 {
		limit = rate.Limit(c.rps)
	}
	burst := c.burst
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(limit, burst)

	base := c.base
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := auth.NewHTTPClient(ts, &throttleTransport{base: base})
	c.gql = graphql.NewClient(c.endpoint, graphql.WithHTTPClient(httpClient))
	return c
}

// Execute runs a query and returns the top-level data object keyed by field or
// alias. Rate limiting is reported as *fetch.ThrottledError. Errors about
// unresolvable nodes are tolerated when data came back, so deleted items only
// drop out of the result.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]interface{}) (map[string]json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := graphql.NewRequest(query)
	for k, v := range variables {
		req.Var(k, v)
	}

	var data map[string]json.RawMessage
	err := c.gql.Run(ctx, req, &data)
	if err == nil {
		return data, nil
	}
	if fetch.IsThrottled(err) {
		return nil, err
	}

	msg := err.Error()
	if isRateLimitMessage(msg) {
		return nil, &fetch.ThrottledError{Message: strings.TrimPrefix(msg, "graphql: ")}
	}
	if len(data) > 0 && strings.Contains(msg, "Could not resolve to") {
		c.log.Debug("Partial GraphQL result", "error", msg)
		return data, nil
	}
	return nil, err
}

// makeRequest runs a request and decodes the data object into resp.
func (c *Client) makeRequest(ctx context.Context, query string, vars map[string]interface{}, resp interface{}) error {
	data, err := c.Execute(ctx, query, vars)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to re-encode response: %w", err)
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") || strings.Contains(msg, "RATE_LIMITED")
}
