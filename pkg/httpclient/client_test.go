package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/httpclient"
)

func newClient(t *testing.T, srv *httptest.Server, opts ...httpclient.Option) *httpclient.Client {
	t.Helper()
	base := []httpclient.Option{
		httpclient.WithHTTPClient(srv.Client()),
		httpclient.WithRetries(2, httpclient.FixedBackoff{Interval: time.Millisecond}),
	}
	c := httpclient.New(append(base, opts...)...)
	t.Cleanup(c.CloseIdleConnections)
	return c
}

func TestClient_GetDecodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, httpclient.DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get(httpclient.HeaderRequestID))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"shirt"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	resp, err := newClient(t, srv).Get(context.Background(), srv.URL, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "shirt", out.Name)
}

func TestClient_PostJSONBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "alice", in["username"])
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv).PostJSON(context.Background(), srv.URL, map[string]string{"username": "alice"}, nil)
	require.NoError(t, err)
}

func TestClient_InterceptorsAreIdempotent(t *testing.T) {
	t.Parallel()

	var authHeaders atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders.Store(int32(len(r.Header.Values("Authorization"))))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	var responses atomic.Int32
	for i := 0; i < 3; i++ {
		c.UseRequest("auth", func(req *http.Request) error {
			req.Header.Add("Authorization", "Bearer abc")
			return nil
		})
		c.UseResponse("count", func(*httpclient.Response) { responses.Add(1) })
	}

	reqHooks, respHooks := c.Interceptors()
	assert.Equal(t, []string{"auth"}, reqHooks)
	assert.Equal(t, []string{"count"}, respHooks)

	_, err := c.Do(context.Background(), httpclient.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.EqualValues(t, 1, authHeaders.Load())
	assert.EqualValues(t, 1, responses.Load())

	c.RemoveRequest("auth")
	c.RemoveResponse("count")
	_, err = c.Do(context.Background(), httpclient.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.EqualValues(t, 0, authHeaders.Load())
	assert.EqualValues(t, 1, responses.Load())
}

func TestClient_ResponseHookSeesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":"rest_forbidden","message":"Sorry"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv)
	var seen int
	c.UseResponse("observe", func(r *httpclient.Response) { seen = r.StatusCode })

	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, seen, "hook runs before Do returns")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, httpclient.IsUnauthorized(err))
	assert.Equal(t, http.StatusForbidden, httpclient.StatusCode(err))
	assert.Contains(t, err.Error(), "rest_forbidden")
}

func TestClient_RequestHookError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	boom := errors.New("boom")
	c.UseRequest("fail", func(*http.Request) error { return boom })

	_, err := c.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, calls.Load())
}

func TestClient_RetriesIdempotentOnly(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Method == http.MethodGet && n >= 3 {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(t, srv)

	_, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())

	calls.Store(0)
	_, err = c.PostJSON(context.Background(), srv.URL, map[string]int{"id": 1}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, httpclient.StatusCode(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(t, srv).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_MalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	var out map[string]any
	_, err := newClient(t, srv).Get(context.Background(), srv.URL, &out)
	assert.ErrorIs(t, err, httpclient.ErrMalformedResponse)
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := httpclient.New(httpclient.WithNoRetry())
	_, err := c.Get(context.Background(), url, nil)
	require.Error(t, err)
	assert.True(t, httpclient.IsNetwork(err))
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cb := httpclient.NewCircuitBreaker(2, 1, time.Hour)
	c := newClient(t, srv, httpclient.WithNoRetry(), httpclient.WithCircuitBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), srv.URL, nil)
		require.Error(t, err)
	}
	assert.Equal(t, httpclient.CircuitOpen, cb.State())

	_, err := c.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_ExplicitHeadersOverrideDefaults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "n-1", r.Header.Get("Nonce"))
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
	}))
	defer srv.Close()

	_, err := newClient(t, srv).Do(context.Background(), httpclient.Request{
		Method: http.MethodGet,
		URL:    srv.URL,
		Header: http.Header{"Accept": {"text/plain"}, "Nonce": {"n-1"}},
	})
	require.NoError(t, err)
}

func TestRequestIDExtractor(t *testing.T) {
	t.Parallel()

	_, ok := httpclient.RequestIDExtractor(context.Background())
	assert.False(t, ok)

	attr, ok := httpclient.RequestIDExtractor(httpclient.WithRequestID(context.Background(), "r-1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "r-1", attr.Value.String())
}
