package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/storefront/pkg/logger"
)

// RequestHook mutates an outgoing request before it is sent.
// Returning an error aborts the call.
type RequestHook func(req *http.Request) error

// ResponseHook observes every response received, before the caller sees it.
type ResponseHook func(resp *Response)

type namedHook[H any] struct {
	name string
	fn   H
}

// Request describes a single API call. Body, when set, is sent as JSON.
type Request struct {
	Method string
	URL    string
	Body   any
	Header http.Header
}

// Client wraps http.Client with an ordered interceptor chain, retries for
// idempotent calls and an optional circuit breaker. The zero value is not
// usable; create instances with New.
//
// Interceptors are registered by name: registering a name again replaces the
// previous hook in place, so setup code can run any number of times without
// stacking duplicate headers or duplicate side effects.
type Client struct {
	http        *http.Client
	logger      *slog.Logger
	userAgent   string
	maxRetries  int
	backoff     BackoffStrategy
	breaker     *CircuitBreaker
	maxBodySize int64

	mu            sync.RWMutex
	requestHooks  []namedHook[RequestHook]
	responseHooks []namedHook[ResponseHook]
}

// New creates a client with defaults suitable for a REST backend.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:      logger.Discard(),
		userAgent:   DefaultUserAgent,
		maxRetries:  2,
		backoff:     DefaultBackoffStrategy(),
		maxBodySize: 1 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseRequest registers or replaces the request hook called name.
func (c *Client) UseRequest(name string, fn RequestHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHooks = upsert(c.requestHooks, name, fn)
}

// UseResponse registers or replaces the response hook called name.
func (c *Client) UseResponse(name string, fn ResponseHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseHooks = upsert(c.responseHooks, name, fn)
}

// RemoveRequest unregisters the request hook called name, if any.
func (c *Client) RemoveRequest(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHooks = slices.DeleteFunc(c.requestHooks, func(h namedHook[RequestHook]) bool { return h.name == name })
}

// RemoveResponse unregisters the response hook called name, if any.
func (c *Client) RemoveResponse(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseHooks = slices.DeleteFunc(c.responseHooks, func(h namedHook[ResponseHook]) bool { return h.name == name })
}

// Interceptors returns the registered hook names in execution order.
func (c *Client) Interceptors() (request, response []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range c.requestHooks {
		request = append(request, h.name)
	}
	for _, h := range c.responseHooks {
		response = append(response, h.name)
	}
	return request, response
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// Breaker returns the circuit breaker, or nil when none is configured.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Get issues a GET and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) Get(ctx context.Context, url string, out any) (*Response, error) {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, URL: url}, out)
}

// PostJSON issues a POST with body encoded as JSON and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) (*Response, error) {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, URL: url, Body: body}, out)
}

// DoJSON is Do followed by decoding a successful body into out.
func (c *Client) DoJSON(ctx context.Context, r Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, r)
	if err != nil || out == nil {
		return resp, err
	}
	if err := resp.Decode(out); err != nil {
		return resp, err
	}
	return resp, nil
}

// Do sends r and returns the buffered response.
//
// Non-2xx responses are returned together with a *StatusError. Transport
// failures, 5xx and 429 are retried with backoff for idempotent methods only.
// Response hooks run synchronously for every response received, so their
// side effects are visible by the time Do returns.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	payload, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}

	if c.breaker != nil && !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	ctx = WithRequestID(ctx, uuid.NewString())

	retries := 0
	if isIdempotent(r.Method) {
		retries = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff.NextInterval(attempt)); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, r, payload, attempt+1)
		c.record(resp, err)

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(resp, err) || attempt == retries {
			return resp, err
		}
		c.logger.DebugContext(ctx, "retrying request",
			logger.Method(r.Method),
			logger.URL(r.URL),
			logger.Attempt(attempt+1),
			logger.Error(err),
		)
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, r Request, payload []byte, attempt int) (*Response, error) {
	start := time.Now()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, RequestIDFromContext(ctx))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	for _, h := range c.snapshotRequestHooks() {
		if err := h.fn(req); err != nil {
			return nil, fmt.Errorf("httpclient: request hook %q: %w", h.name, err)
		}
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
			return nil, errors.Join(ErrTimeout, err)
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, errors.Join(ErrTransport, err)
		}
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBodySize))
	if err != nil {
		return nil, errors.Join(ErrTransport, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       raw,
		Request:    req,
		Duration:   time.Since(start),
	}

	c.logger.DebugContext(ctx, "api call",
		logger.Method(r.Method),
		logger.URL(r.URL),
		logger.Status(resp.StatusCode),
		logger.Attempt(attempt),
		logger.Duration(resp.Duration),
	)

	for _, h := range c.snapshotResponseHooks() {
		h.fn(resp)
	}

	if !resp.OK() {
		return resp, newStatusError(resp)
	}
	return resp, nil
}

// record feeds the breaker. Only transport failures and 5xx count against
// the backend; 4xx are the caller's problem.
func (c *Client) record(resp *Response, err error) {
	if c.breaker == nil {
		return
	}
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
	case resp == nil:
		if !errors.Is(err, context.Canceled) {
			c.breaker.RecordFailure()
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		c.breaker.RecordFailure()
	default:
		c.breaker.RecordSuccess()
	}
}

func (c *Client) snapshotRequestHooks() []namedHook[RequestHook] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.requestHooks)
}

func (c *Client) snapshotResponseHooks() []namedHook[ResponseHook] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.responseHooks)
}

func upsert[H any](hooks []namedHook[H], name string, fn H) []namedHook[H] {
	for i := range hooks {
		if hooks[i].name == name {
			hooks[i].fn = fn
			return hooks
		}
	}
	return append(hooks, namedHook[H]{name: name, fn: fn})
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Join(ErrInvalidRequest, err)
		}
		return payload, nil
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func retryable(resp *Response, err error) bool {
	if resp == nil {
		return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
