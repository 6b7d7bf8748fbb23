// Package restfs presents the collections of a JSON REST repository as a tree.
package restfs

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

	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/metrics"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RequestIDHeader carries a fresh id for every logical request, shared by its retries
const RequestIDHeader = "X-Request-Id"

// HTTPClient is the part of [http.Client] the client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a response with a non 2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err carries a 404 response.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// ParseURL validates the base URL of a repository. Only http and https URLs with
// a host and without user info are accepted.
func ParseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty URL")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: missing host", raw)
	}
	if u.User != nil {
		return nil, fmt.Errorf("invalid URL %q: user info is not allowed, configure a token instead", raw)
	}
	return u, nil
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the default [http.Client].
func WithHTTPClient(hc HTTPClient) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithBackOff replaces the exponential backoff between retries.
func WithBackOff(newBackOff func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = newBackOff }
}

// Client talks JSON to a repository. Failed requests are retried with
// exponential backoff on network errors and 5xx responses; concurrent identical
// GETs share one request.
type Client struct {
	base       *url.URL
	token      string
	timeout    time.Duration
	maxRetries int
	http       HTTPClient
	newBackOff func() backoff.BackOff
	gets       singleflight.Group
}

func NewClient(cfg config.Remote, opts ...ClientOption) (*Client, error) {
	base, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:       base,
		token:      cfg.Token,
		timeout:    time.Duration(cfg.Timeout * float64(time.Second)),
		maxRetries: max(cfg.MaxRetries, 0),
		http:       &http.Client{},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL resolves apiPath against the base URL.
func (c *Client) URL(apiPath string) string {
	return c.base.JoinPath(apiPath).String()
}

// Get fetches apiPath. Callers may modify the returned bytes.
func (c *Client) Get(ctx context.Context, apiPath string) ([]byte, error) {
	return c.GetURL(ctx, c.URL(apiPath))
}

// GetURL fetches an absolute URL. The token is only sent to the repository host.
func (c *Client) GetURL(ctx context.Context, rawURL string) ([]byte, error) {
	v, err, shared := c.gets.Do(rawURL, func() (any, error) {
		return c.do(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)
	if shared {
		data = bytes.Clone(data)
	}
	return data, nil
}

// GetJSON fetches apiPath and decodes it into v.
func (c *Client) GetJSON(ctx context.Context, apiPath string, v any) error {
	data, err := c.Get(ctx, apiPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", apiPath, err)
	}
	return nil
}

func (c *Client) Put(ctx context.Context, apiPath string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPut, c.URL(apiPath), body)
}

func (c *Client) Post(ctx context.Context, apiPath string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.URL(apiPath), body)
}

func (c *Client) Delete(ctx context.Context, apiPath string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, c.URL(apiPath), nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	logger := util.GetLogger("restfs")
	requestID := uuid.NewString()

	var out []byte
	attempts := 0
	op := func() error {
		attempts++
		data, err := c.attempt(ctx, method, rawURL, body, requestID)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var se *StatusError
			if errors.As(err, &se) && attempts > 1 && appliedBefore(method, se.StatusCode) {
				logger.Debug().Str("method", method).Str("url", rawURL).Str("request_id", requestID).
					Int("status", se.StatusCode).Msg("Earlier attempt took effect")
				out = nil
				return nil
			}
			if errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		out = data
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		metrics.RecordRemoteRetry()
		logger.Debug().Err(err).Str("request_id", requestID).Dur("wait", wait).Msg("Retrying request")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return out, nil
}

// appliedBefore reports whether status on a retry means an earlier attempt of a
// non-idempotent request already succeeded.
func appliedBefore(method string, status int) bool {
	switch method {
	case http.MethodPost:
		return status == http.StatusConflict
	case http.MethodDelete:
		return status == http.StatusNotFound
	}
	return false
}

func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, requestID string) ([]byte, error) {
	logger := util.GetLogger("restfs")

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" && req.URL.Host == c.base.Host {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Trace().Str("method", method).Str("url", rawURL).Str("request_id", requestID).Msg("Sending request")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	metrics.RecordRemoteRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading body: %w", method, rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}
