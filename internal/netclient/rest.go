package netclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/MementoRC/candles-feed/internal/adapter"
)

// Config tunes one REST client. The zero value is usable; unset fields
// take the defaults below.
type Config struct {
	// Name attributes errors and log lines, normally the exchange id.
	Name string

	// Timeout bounds one HTTP attempt.
	Timeout time.Duration

	UserAgent string

	// RPS and Burst shape the default per-host limiter. Ignored when
	// Limiter is injected.
	RPS   float64
	Burst int

	// RetryLimit is the number of additional attempts after the
	// first; negative disables retries. RetryDelay separates
	// attempts. Rate-limit responses honour the server's Retry-After
	// hint instead, capped by MaxRetryAfter.
	RetryLimit    int
	RetryDelay    time.Duration
	MaxRetryAfter time.Duration

	// Limiter and HTTPClient are injectable for embedding hosts.
	Limiter    Limiter
	HTTPClient *http.Client

	Logger zerolog.Logger

	// MetricsCallback receives coarse client events: rest_retry,
	// rest_rate_limited, breaker_open.
	MetricsCallback func(event string, value any)
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "exchange"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "candles-feed/1.0"
	}
	if c.RPS <= 0 {
		c.RPS = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	} else if c.RetryLimit == 0 {
		c.RetryLimit = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 250 * time.Millisecond
	}
	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = 30 * time.Second
	}
	if c.Limiter == nil {
		c.Limiter = NewPerHost(c.RPS, c.Burst)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// Client is the default HTTP assistant. It satisfies the adapter's
// RESTClient contract.
type Client struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New builds a REST client.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		breaker: newBreaker(cfg.Name),
		log:     cfg.Logger.With().Str("component", "netclient").Str("exchange", cfg.Name).Logger(),
	}
}

var _ adapter.RESTClient = (*Client)(nil)

// GetJSON performs a GET with the encoded query and returns the
// response body. Transport faults, HTTP 408, 429 and 5xx are retried
// up to the configured limit; other statuses return immediately as
// protocol errors.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, adapter.MisuseError("bad request URL %q: %v", rawURL, err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return c.request(ctx, u, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	})
}

// PostJSON performs a POST with a JSON body and returns the response
// body, with the same retry envelope as GetJSON.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, adapter.MisuseError("bad request URL %q: %v", rawURL, err)
	}
	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, adapter.MisuseError("encode request body: %v", err)
		}
	}
	return c.request(ctx, u, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (c *Client) request(ctx context.Context, u *url.URL, build func() (*http.Request, error)) ([]byte, error) {
	if err := c.cfg.Limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryLimit; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, lastErr, attempt); err != nil {
				return nil, err
			}
		}
		result, err := c.breaker.Execute(func() (any, error) {
			req, err := build()
			if err != nil {
				return nil, adapter.NewError(c.cfg.Name, adapter.KindTransport, "build request", err)
			}
			req.Header.Set("User-Agent", c.cfg.UserAgent)
			return c.do(req)
		})
		if err == nil {
			return result.([]byte), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.emit("breaker_open", c.cfg.Name)
			return nil, adapter.NewError(c.cfg.Name, adapter.KindTransport, "circuit breaker open", err)
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// do performs a single attempt and classifies the outcome.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, adapter.NewError(c.cfg.Name, adapter.KindTransport, req.Method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adapter.NewError(c.cfg.Name, adapter.KindTransport, "read response body", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.emit("rest_rate_limited", resp.StatusCode)
		return nil, &adapter.Error{
			Exchange:   c.cfg.Name,
			Kind:       adapter.KindRateLimit,
			Message:    "rate limited by " + req.URL.Host,
			HTTPStatus: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, &adapter.Error{
			Exchange:   c.cfg.Name,
			Kind:       adapter.KindProtocol,
			Message:    truncate(string(body), 200),
			HTTPStatus: resp.StatusCode,
		}
	}
}

// backoff sleeps between attempts, honouring a rate-limit hint when
// the server gave one.
func (c *Client) backoff(ctx context.Context, lastErr error, attempt int) error {
	delay := c.cfg.RetryDelay
	if hint, ok := adapter.RetryAfterOf(lastErr); ok {
		delay = hint
		if delay > c.cfg.MaxRetryAfter {
			delay = c.cfg.MaxRetryAfter
		}
	}
	c.emit("rest_retry", attempt)
	c.log.Debug().Int("attempt", attempt).Dur("delay", delay).Err(lastErr).Msg("retrying request")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) emit(event string, value any) {
	if c.cfg.MetricsCallback != nil {
		c.cfg.MetricsCallback(event, value)
	}
}

// retryable reports whether another attempt can change the outcome:
// transport faults, timeouts (408), rate limits (429) and 5xx.
func retryable(err error) bool {
	var fe *adapter.Error
	if !errors.As(err, &fe) {
		return true
	}
	switch fe.Kind {
	case adapter.KindTransport, adapter.KindRateLimit:
		return true
	case adapter.KindProtocol:
		return fe.HTTPStatus == http.StatusRequestTimeout || fe.HTTPStatus >= 500
	}
	return false
}

// parseRetryAfter reads the Retry-After header, either delta-seconds
// or an HTTP date.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
