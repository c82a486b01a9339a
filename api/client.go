// Package api is the HTTP transport shared by the identity, KYC and FAQ
// clients. It never interprets status codes for success: callers classify a
// Response by the shape of its body.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// ContentType is sent on every request; the backend expects it even for
	// JSON bodies.
	ContentType = "text/html"
	// HeaderClientID carries the configured client identifier.
	HeaderClientID = "clientId"
	// HeaderAccessToken carries the session token on authenticated calls.
	HeaderAccessToken = "accessToken"

	DefaultTimeout = 60 * time.Second
	maxBodyBytes   = 10 << 20
)

// Request describes one call to the backend.
type Request struct {
	Method   string
	Endpoint string
	Header   map[string]string
	Query    url.Values
	// Payload is JSON-encoded for POST and PUT.
	Payload any
}

// Client calls the remote API rooted at a base URL.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	timeout    time.Duration
	probe      bool
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each call (probe plus request). Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithoutProbe disables the HEAD reachability probe sent before each request.
func WithoutProbe() Option {
	return func(c *Client) {
		c.probe = false
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a Client for baseURL identifying itself with clientID.
func New(baseURL, clientID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		probe:      true,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req. Transport failures, timeouts included, do not produce an
// error: they come back as a Response whose body has connectionError set.
// The returned error is reserved for requests that could not be built.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		return nil, &Failure{Kind: KindPrecondition, Message: method, Err: ErrUnsupportedMethod}
	}

	target := c.baseURL + req.Endpoint
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body []byte
	if method != http.MethodGet && req.Payload != nil {
		var err error
		if body, err = json.Marshal(req.Payload); err != nil {
			return nil, fmt.Errorf("encoding payload for %s: %w", req.Endpoint, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("api request", slog.String("method", method), slog.String("url", target))

	if c.probe {
		if err := c.head(ctx, target); err != nil {
			c.logger.Warn("server not reachable", slog.String("url", target), slog.String("error", err.Error()))
			return connectionErrorResponse(err), nil
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", req.Endpoint, err)
	}
	httpReq.Header.Set("Content-Type", ContentType)
	httpReq.Header.Set(HeaderClientID, c.clientID)
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("server not reachable", slog.String("url", target), slog.String("error", err.Error()))
		return connectionErrorResponse(err), nil
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Warn("reading response failed", slog.String("url", target), slog.String("error", err.Error()))
		return connectionErrorResponse(err), nil
	}
	return c.decode(target, httpResp.StatusCode, raw), nil
}

func (c *Client) head(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) decode(target string, status int, raw []byte) *Response {
	resp := &Response{StatusCode: status, Raw: raw, Body: map[string]any{}}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		resp.Malformed = true
		c.logger.Warn("malformed response body",
			slog.String("url", target),
			slog.Int("status", status),
			slog.Int("bytes", len(raw)))
		return resp
	}
	resp.Body = body
	return resp
}
