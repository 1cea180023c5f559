// Package fetch is the HTTP layer shared by all protocol crawlers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "NewsCrawler/1.0"
	DefaultMaxBodyBytes = 10 << 20
)

type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// Client performs single HTTP exchanges with a hard timeout. It never
// retries; see Retry.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// NewClientWithHTTP wraps an existing http.Client, mainly for tests.
func NewClientWithHTTP(hc *http.Client, userAgent string) *Client {
	c := NewClient(Config{UserAgent: userAgent})
	c.httpClient = hc
	return c
}

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Accept  string
}

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	FinalURL    string
}

// Do executes req and returns the full body of a 2xx response. Failures are
// returned as *Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, Permanent(req.URL, fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if req.Body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, Permanent(req.URL, err)
		}
		return nil, Transient(req.URL, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, statusError(req.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, Transient(req.URL, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > c.maxBodyBytes {
		return nil, Permanent(req.URL, fmt.Errorf("body exceeds %d bytes", c.maxBodyBytes))
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
