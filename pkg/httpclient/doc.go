// Package httpclient is the explicit HTTP client instance shared by the
// session manager and the cart synchronizer.
//
// Instead of mutating process-wide defaults, callers own a *Client and
// register named interceptors on it:
//
//	c := httpclient.New(httpclient.WithLogger(log))
//	c.UseRequest("session.bearer", attachBearer)
//	c.UseResponse("session.auth-failure", logoutOn401)
//
// Registering the same name twice replaces the hook, so a request never
// carries two Authorization headers and a 401 never triggers two logouts.
//
// Do buffers the response body, runs response hooks synchronously, and
// returns a *StatusError for non-2xx statuses. GET/HEAD/OPTIONS are retried
// on transport errors, 408, 429 and 5xx using a BackoffStrategy; an optional
// CircuitBreaker fails fast with ErrCircuitOpen while the backend is down.
//
// Every call gets a fresh request id (github.com/google/uuid) sent as
// X-Request-ID and stored in the context; RequestIDExtractor exposes it to
// pkg/logger.
package httpclient
