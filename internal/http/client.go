package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kosarica/catalog-ingest/internal/http/ratelimit"
)

// ErrResponseTooLarge is returned when a body exceeds the configured limit
var ErrResponseTooLarge = errors.New("response body too large")

const userAgent = "CatalogIngest/1.0"

// Options configures a Client
type Options struct {
	RateLimit ratelimit.Config
	Timeout   time.Duration
	// MaxBodyBytes caps the downloaded payload; zero means unlimited
	MaxBodyBytes int64
}

// Client is an HTTP client with rate limiting and retry logic
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.RateLimiter
	options     Options
}

// NewClient creates a new HTTP client with rate limiting. A zero RateLimit
// uses ratelimit.DefaultConfig.
func NewClient(options Options) *Client {
	if options.RateLimit == (ratelimit.Config{}) {
		options.RateLimit = ratelimit.DefaultConfig()
	}
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   options.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		rateLimiter: ratelimit.NewRateLimiter(options.RateLimit),
		options:     options,
	}
}

// Fetch downloads url and returns the full body. Any non-2xx response is an
// error; 429 and 5xx are retried with backoff. Failures are *ratelimit.FetchError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	config := c.options.RateLimit
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Throttle(ctx); err != nil {
			return nil, &ratelimit.FetchError{URL: url, Attempts: attempt, Status: lastStatus, Err: err}
		}

		body, status, retryAfter, err := c.get(ctx, url)
		lastStatus, lastErr = status, err
		if err == nil && status >= 200 && status < 300 {
			return body, nil
		}

		retryable := ctx.Err() == nil && !errors.Is(err, ErrResponseTooLarge)
		if status != 0 {
			retryable = retryable && ratelimit.IsRetryableStatus(status)
		}
		if !retryable || attempt == config.MaxRetries {
			return nil, &ratelimit.FetchError{URL: url, Attempts: attempt + 1, Status: status, Err: err}
		}

		var backoff time.Duration
		if status == http.StatusTooManyRequests {
			backoff = ratelimit.CalculateRateLimitBackoff(attempt, config, retryAfter)
		} else {
			backoff = ratelimit.CalculateBackoff(attempt, config)
		}
		if err := ratelimit.Sleep(ctx, backoff); err != nil {
			return nil, &ratelimit.FetchError{URL: url, Attempts: attempt + 1, Status: status, Err: err}
		}
	}

	return nil, &ratelimit.FetchError{URL: url, Attempts: config.MaxRetries + 1, Status: lastStatus, Err: lastErr}
}

// get performs one attempt. A non-2xx status is returned with a nil error.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, resp.Header.Get("Retry-After"), nil
	}

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", err
	}
	return body, resp.StatusCode, "", nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	limit := c.options.MaxBodyBytes
	if limit <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return data, nil
}
