package httpclient

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultUserAgent identifies the client to the backend.
const DefaultUserAgent = "storefront-client/1.0"

// Config is the env-driven client configuration.
type Config struct {
	Timeout                 time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	MaxRetries              int           `env:"HTTP_MAX_RETRIES" envDefault:"2"`
	RetryInitialInterval    time.Duration `env:"HTTP_RETRY_INITIAL_INTERVAL" envDefault:"250ms"`
	RetryMaxInterval        time.Duration `env:"HTTP_RETRY_MAX_INTERVAL" envDefault:"5s"`
	BreakerFailureThreshold int           `env:"HTTP_BREAKER_FAILURES" envDefault:"5"`
	BreakerSuccessThreshold int           `env:"HTTP_BREAKER_SUCCESSES" envDefault:"1"`
	BreakerRecoveryTimeout  time.Duration `env:"HTTP_BREAKER_RECOVERY" envDefault:"30s"`
	UserAgent               string        `env:"HTTP_USER_AGENT" envDefault:"storefront-client/1.0"`
}

// FromConfig builds a client from cfg; opts are applied afterwards.
// A zero BreakerFailureThreshold disables the circuit breaker.
func FromConfig(cfg Config, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithUserAgent(cfg.UserAgent),
		WithRetries(cfg.MaxRetries, ExponentialBackoff{
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Multiplier:      2,
			JitterFactor:    0.1,
		}),
	}
	if cfg.BreakerFailureThreshold > 0 {
		base = append(base, WithCircuitBreaker(NewCircuitBreaker(
			cfg.BreakerFailureThreshold,
			cfg.BreakerSuccessThreshold,
			cfg.BreakerRecoveryTimeout,
		)))
	}
	return New(append(base, opts...)...)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, e.g. an httptest server client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries sets how many times idempotent calls are retried.
func WithRetries(n int, strategy BackoffStrategy) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
		if strategy != nil {
			c.backoff = strategy
		}
	}
}

// WithNoRetry disables retries.
func WithNoRetry() Option {
	return func(c *Client) {
		c.maxRetries = 0
	}
}

// WithCircuitBreaker guards every call with cb.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxBodySize caps how much of a response body is buffered.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}
