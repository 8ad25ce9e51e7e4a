// Package http wraps resty with the JSON codec, timeout, and request
// logging shared by every adapter call. Each call is a single best-effort
// attempt; retry policy belongs to the caller.
package http

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"pulsebybit/pkg/core"
)

type Client struct {
	client *resty.Client
	logger zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

type Config struct {
	BaseURL string        `validate:"required,url"`
	Timeout time.Duration `validate:"min=1ms"`
	Logger  zerolog.Logger
}

type RequestOption func(*resty.Request)

func NewClient(config *Config) (*Client, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(config.BaseURL)
	client.SetTimeout(config.Timeout)
	client.AddContentTypeEncoder("application/json", func(w io.Writer, v any) error {
		data, err := sonic.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	client.AddContentTypeDecoder("application/json", func(r io.Reader, v any) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(data, v)
	})

	logger := config.Logger

	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("http request")
		return nil
	})

	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Int("size", len(resp.Bytes())).
			Msg("http response")
		return nil
	})

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*resty.Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrClientClosed
	}

	req := c.client.R().SetContext(ctx)
	for _, opt := range opts {
		opt(req)
	}
	return req.Get(url)
}

func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*resty.Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrClientClosed
	}

	req := c.client.R().SetContext(ctx).SetBody(body)
	for _, opt := range opts {
		opt(req)
	}
	return req.Post(url)
}

func WithHeader(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader(key, value)
	}
}

func WithHeaders(headers map[string]string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeaders(headers)
	}
}

func WithQueryParam(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParam(key, value)
	}
}
