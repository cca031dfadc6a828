// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
)

const (
	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 10 << 20

	// maxErrorBodySize caps the body excerpt attached to error logs.
	maxErrorBodySize = 64 << 10
)

// Client talks to the LibreLinkUp API. It is safe for concurrent use.
type Client struct {
	mu        sync.RWMutex
	baseURL   string
	accountID string

	product string
	version string

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*rawResponse]

	// regionURL maps a login redirect region to an API host.
	regionURL func(region string) string

	// loc interprets zone-less device timestamps.
	loc *time.Location
	now func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces time.Now, used for timestamp fallbacks and date ranges.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLocation sets the zone used for device-local timestamps.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

// WithRegionURL overrides how a redirect region becomes a base URL.
func WithRegionURL(fn func(region string) string) Option {
	return func(c *Client) { c.regionURL = fn }
}

// DefaultRegionURL returns https://api-{region}.libreview.io.
func DefaultRegionURL(region string) string {
	return "https://api-" + region + ".libreview.io"
}

// New creates a Client from configuration.
func New(cfg *config.LibreViewConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		product:    cfg.Product,
		version:    cfg.Version,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    newBreaker(),
		regionURL:  DefaultRegionURL,
		loc:        time.Local,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the current API host, which may change after a regional
// redirect during login.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) setBaseURL(u string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(u, "/")
	c.mu.Unlock()
}

// SetUserID derives the Account-Id header from the authenticated user id.
func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if userID == "" {
		c.accountID = ""
		return
	}
	c.accountID = AccountID(userID)
}

// AccountID is the hex SHA-256 digest of a user id, as expected by the
// Account-Id header.
func AccountID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

// request describes one upstream call.
type request struct {
	method   string
	endpoint string // metrics label
	path     string
	query    url.Values
	token    string
	body     any
}

// do paces, breaks and executes a request. It returns the response for any
// status the server answered with; callers classify non-200s.
func (c *Client) do(ctx context.Context, req request) (*rawResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newError(KindNetwork, req.endpoint, err)
	}

	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		return c.roundTrip(ctx, req)
	})
	recordBreakerResult(err)

	switch {
	case err == nil:
	case isBreakerRejection(err):
		metrics.UpstreamRequests.WithLabelValues(req.endpoint, "rejected").Inc()
		return nil, newError(KindServiceUnavailable, req.endpoint, err)
	case errors.Is(err, errServerStatus) && resp != nil:
		// Classified by the caller from resp.status.
	default:
		metrics.UpstreamRequests.WithLabelValues(req.endpoint, "error").Inc()
		return nil, newError(KindNetwork, req.endpoint, err)
	}

	metrics.UpstreamRequests.WithLabelValues(req.endpoint, strconv.Itoa(resp.status)).Inc()
	if resp.status != http.StatusOK {
		logging.Ctx(ctx).Warn().
			Str("endpoint", req.endpoint).
			Int("status", resp.status).
			Str("body", truncateBody(resp.body)).
			Msg("LibreView returned non-200 status")
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req request) (*rawResponse, error) {
	u := c.BaseURL() + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq, req.token)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	logging.Ctx(ctx).Debug().
		Str("endpoint", req.endpoint).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("LibreView request completed")

	raw := &rawResponse{status: resp.StatusCode, header: resp.Header, body: data}
	if resp.StatusCode >= 500 {
		return raw, errServerStatus
	}
	return raw, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("product", c.product)
	req.Header.Set("version", c.version)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		c.mu.RLock()
		accountID := c.accountID
		c.mu.RUnlock()
		if accountID != "" {
			req.Header.Set("Account-Id", accountID)
		}
	}
}

// readBody reads at most maxResponseSize bytes, inflating gzip bodies. The
// transport leaves them compressed because Accept-Encoding is set by hand.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(io.LimitReader(r, maxResponseSize))
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBodySize {
		return string(body[:maxErrorBodySize]) + "...(truncated)"
	}
	return string(body)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// statusError wraps a non-200 response as an *Error of the given kind.
func (c *Client) statusError(kind Kind, op string, resp *rawResponse) *Error {
	e := &Error{
		Kind:       kind,
		Op:         op,
		StatusCode: resp.status,
		Err:        fmt.Errorf("unexpected status %d", resp.status),
	}
	if resp.status == http.StatusTooManyRequests {
		e.RetryAfter = parseRetryAfter(resp.header.Get("Retry-After"), c.now())
	}
	return e
}
