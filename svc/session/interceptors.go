package session

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/storefront/pkg/httpclient"
	"github.com/dmitrymomot/storefront/pkg/logger"
)

// Interceptor names on the shared client.
const (
	InterceptorBearer      = "session.bearer"
	InterceptorAuthFailure = "session.auth-failure"
)

// InstallInterceptors registers the bearer and auth-failure hooks. Hooks are
// keyed by name, so calling this again replaces them instead of stacking.
func (m *Manager) InstallInterceptors() {
	m.client.UseRequest(InterceptorBearer, m.attachBearer)
	m.client.UseResponse(InterceptorAuthFailure, m.handleAuthFailure)
}

// attachBearer reads the in-memory token on every request, so logout takes
// effect for the next request without touching the client.
func (m *Manager) attachBearer(req *http.Request) error {
	if isAnonymous(req.Context()) || req.Header.Get("Authorization") != "" {
		return nil
	}
	tok, err := m.Token()
	if err != nil {
		return nil
	}
	tok.SetAuthHeader(req)
	return nil
}

// handleAuthFailure logs out when a request carrying the current token is
// rejected with 401 or 403, whatever the endpoint or error code. It runs
// before the caller sees the response.
func (m *Manager) handleAuthFailure(resp *httpclient.Response) {
	if !isAuthStatus(resp.StatusCode) || resp.Request == nil {
		return
	}
	ctx := resp.Request.Context()
	if isAnonymous(ctx) {
		return
	}

	m.mu.RLock()
	current, gen := m.sess.Token, m.gen
	m.mu.RUnlock()

	sent := resp.Request.Header.Get("Authorization")
	if current == "" || sent != "Bearer "+current {
		return
	}

	m.logger.WarnContext(ctx, "request rejected, logging out",
		logger.Status(resp.StatusCode),
		logger.URL(resp.Request.URL.String()),
	)
	m.invalidate(context.WithoutCancel(ctx), gen, "authorization rejected")
}
