package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// ErrStatus is returned for non-2xx responses
var ErrStatus = errors.New("httpclient: unexpected status")

// Config defines client behavior
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
	UserAgent  string
	// RateLimit is requests per second; zero means unlimited
	RateLimit float64
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		MinWait:    1 * time.Second,
		MaxWait:    30 * time.Second,
		UserAgent:  "mixfetch/1.0",
	}
}

// Client wraps resty with rate limiting
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
}

// New creates an HTTP client
func New(cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.MinWait
	retryClient.RetryWaitMax = cfg.MaxWait
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.MinWait).
		SetRetryMaxWaitTime(cfg.MaxWait)
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
	}
}

// Get fetches url and returns the body of a 2xx response
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	body, _, err := c.GetWithType(ctx, url)
	return body, err
}

// GetWithType is Get that also returns the response Content-Type
func (c *Client) GetWithType(ctx context.Context, url string) ([]byte, string, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	resp, err := c.Resty.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", url, err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("%w: %s returned %d", ErrStatus, url, resp.StatusCode())
	}

	return resp.Body(), resp.Header().Get("Content-Type"), nil
}
