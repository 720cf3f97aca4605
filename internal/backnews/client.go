package backnews

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryAfter   = time.Second
	defaultMaxRetryWait = 5 * time.Second
	maxResponseBytes    = 32 << 20
)

// HTTPDoer is the part of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the BackNews REST API. A Client is safe for concurrent use;
// As derives per-session copies that share transport and rate limiter.
type Client struct {
	baseURL        string
	http           HTTPDoer
	limiter        *rate.Limiter
	logger         *slog.Logger
	token          string
	onUnauthorized func()
	maxRetryWait   time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http = &http.Client{Timeout: timeout}
		}
	}
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithUnauthorizedHandler registers fn to run whenever the API answers 401.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithMaxRetryWait caps how long a 429 Retry-After is honoured.
func WithMaxRetryWait(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.maxRetryWait = d
		}
	}
}

// New creates a client for the API rooted at baseURL (e.g. https://host/api).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:         &http.Client{Timeout: defaultTimeout},
		logger:       slog.Default(),
		maxRetryWait: defaultMaxRetryWait,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// As returns a copy bound to token whose 401 answers call onUnauthorized.
func (c *Client) As(token string, onUnauthorized func()) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	clone.onUnauthorized = onUnauthorized
	return &clone
}

// Token returns the bearer token the client sends, if any.
func (c *Client) Token() string {
	return c.token
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	rawBody     []byte
	contentType string
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dst any) error {
	body, err := c.do(ctx, request{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decodeData(body, dst)
}

func (c *Client) send(ctx context.Context, method, path string, payload, dst any) error {
	body, err := c.do(ctx, request{method: method, path: path, body: payload})
	if err != nil {
		return err
	}
	return decodeData(body, dst)
}

// do performs req. GETs get one retry on transport or 5xx failures; every
// method gets one retry after a 429.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	payload := req.rawBody
	contentType := req.contentType
	if payload == nil && req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("backnews: encode %s %s: %w", req.method, req.path, err)
		}
		payload = encoded
		contentType = "application/json"
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	retried := false
	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, newTransportError(err)
			}
		}

		started := time.Now()
		status, header, body, err := c.roundTrip(ctx, req.method, target, contentType, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, newTransportError(ctx.Err())
			}
			c.logger.Warn("upstream request failed", "method", req.method, "path", req.path, "error", err)
			if req.method == http.MethodGet && !retried {
				retried = true
				continue
			}
			return nil, newTransportError(err)
		}

		c.logger.Debug("upstream request",
			"method", req.method,
			"path", req.path,
			"status", status,
			"duration", time.Since(started),
		)

		if status >= 200 && status < 300 {
			return body, nil
		}

		apiErr := newStatusError(status, body)
		switch apiErr.Kind {
		case KindUnauthorized:
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
			return nil, apiErr
		case KindRateLimited:
			if retried {
				return nil, apiErr
			}
			wait := c.retryAfter(header.Get("Retry-After"))
			c.logger.Warn("upstream rate limited", "method", req.method, "path", req.path, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, apiErr
			}
			retried = true
			continue
		case KindServer:
			if req.method == http.MethodGet && !retried {
				retried = true
				continue
			}
		}
		return nil, apiErr
	}
}

func (c *Client) roundTrip(ctx context.Context, method, target, contentType string, payload []byte) (int, http.Header, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) retryAfter(header string) time.Duration {
	wait := defaultRetryAfter
	header = strings.TrimSpace(header)
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(header); err == nil {
			wait = time.Until(at)
		}
	}
	if wait < 0 {
		wait = 0
	}
	if wait > c.maxRetryWait {
		wait = c.maxRetryWait
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			q.Set(key, v)
		}
	}
	set("search", p.Search)
	set("status", p.Status)
	set("category", p.Category)
	set("author", p.Author)
	set("domain", p.Domain)
	set("role", p.Role)
	if p.IsActive != nil {
		q.Set("isActive", strconv.FormatBool(*p.IsActive))
	}
	return q
}

func pageQuery(page, limit int) url.Values {
	return ListParams{Page: page, Limit: limit}.values()
}

func escape(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}
