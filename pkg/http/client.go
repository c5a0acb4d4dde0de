package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultClientTimeout = 10 * time.Second
	// DefaultMaxBody bounds a provider response; quotes and tickers are a few hundred bytes.
	DefaultMaxBody = 1 << 20

	errorBodyLimit = 512
)

// ErrBodyTooLarge is returned when a response exceeds the client's body limit.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Permanent reports a client error that a retry will not fix.
func (e *StatusError) Permanent() bool {
	if e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout {
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

// Client is a JSON client bound to one upstream, a market-data API or a
// webhook. Query params and headers set on the client go out with every
// request; credentials passed as query params never appear in errors.
type Client struct {
	hc      *http.Client
	baseURL string
	query   url.Values
	header  http.Header
	secret  map[string]bool
	maxBody int64
}

// ClientOption configures Client.
type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.hc.Transport = rt }
}

// WithBaseURL prefixes every relative request path.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithToken adds a credential query param, redacted from errors.
func WithToken(param, value string) ClientOption {
	return func(c *Client) {
		if value == "" {
			return
		}
		c.query.Set(param, value)
		c.secret[param] = true
	}
}

// WithHeaders adds headers sent on every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.header.Set(k, v)
		}
	}
}

func WithMaxBody(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hc:      &http.Client{Timeout: DefaultClientTimeout},
		query:   url.Values{},
		header:  http.Header{},
		secret:  map[string]bool{},
		maxBody: DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches path with query and decodes the body into dest.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, dest)
}

// PostJSON sends body as JSON. dest may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, dest)
}

// URL resolves path against the base URL and merges the client query.
func (c *Client) URL(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	if len(c.query) == 0 && len(query) == 0 {
		return target
	}
	q := url.Values{}
	for k, vs := range c.query {
		q[k] = append([]string(nil), vs...)
	}
	for k, vs := range query {
		q[k] = append(q[k], vs...)
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + q.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), rdr)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = c.redact(req.URL)
		}
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, ErrBodyTooLarge)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > errorBodyLimit {
			data = data[:errorBodyLimit]
		}
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if dest == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) redact(u *url.URL) string {
	if len(c.secret) == 0 {
		return u.String()
	}
	cp := *u
	q := cp.Query()
	for k := range c.secret {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	cp.RawQuery = q.Encode()
	return cp.String()
}
