package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a request when the caller's context has no deadline.
const DefaultTimeout = 15 * time.Second

// Client is the chat server's REST client.
//
// Thread-safety: safe for concurrent use. The engine issues requests from
// dispatched tasks, several of which may be in flight at once.
type Client struct {
	http    *fasthttp.Client
	base    string
	tokens  TokenSource
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying fasthttp client.
func WithHTTPClient(c *fasthttp.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-request timeout used when the context has no
// deadline. Default: DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client for the server at baseURL, e.g. "https://chat.example".
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		http: &fasthttp.Client{
			Name:                "convsync",
			MaxIdleConnDuration: time.Minute,
		},
		base:    strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request describes one call. body is sent as-is with contentType.
type request struct {
	method      string
	path        string
	query       map[string]string
	body        []byte
	contentType string
}

// do performs r and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + r.path)
	req.Header.SetMethod(r.method)
	req.Header.Set("Accept", "application/json")
	for k, v := range r.query {
		req.URI().QueryArgs().Set(k, v)
	}
	if c.tokens == nil {
		return ErrNoToken
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if r.body != nil {
		req.Header.SetContentType(r.contentType)
		req.SetBody(r.body)
	}

	start := time.Now()
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}

	code := resp.StatusCode()
	c.logger.Debug("api request",
		"method", r.method,
		"path", r.path,
		"status", code,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if code < 200 || code > 299 {
		return &StatusError{Method: r.method, Path: r.path, Code: code, Detail: detail(resp.Body())}
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, request{method: fasthttp.MethodGet, path: path}, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	r := request{method: method, path: path}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		r.body = body
		r.contentType = "application/json"
	}
	return c.do(ctx, r, out)
}
