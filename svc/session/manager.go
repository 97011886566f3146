package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/storefront/pkg/async"
	"github.com/dmitrymomot/storefront/pkg/httpclient"
	"github.com/dmitrymomot/storefront/pkg/jwt"
	"github.com/dmitrymomot/storefront/pkg/logger"
	"github.com/dmitrymomot/storefront/svc/state"
	"github.com/dmitrymomot/storefront/svc/wp"
)

// Session is the client-side view of the authenticated user.
// IsAuthenticated is true only while Token is set and was either just
// issued or validated by the server.
type Session struct {
	Token           string
	UserEmail       string
	UserNicename    string
	UserDisplayName string
	IsAuthenticated bool
	LastError       string
}

// Identity returns the user fields of s.
func (s Session) Identity() wp.Identity {
	return wp.Identity{Email: s.UserEmail, Nicename: s.UserNicename, DisplayName: s.UserDisplayName}
}

// CartSync is the cart side of a session change.
type CartSync interface {
	Restore(ctx context.Context, rec state.Record)
	Reconcile(ctx context.Context) wp.Cart
	ClearCart(ctx context.Context)
}

type noCart struct{}

func (noCart) Restore(context.Context, state.Record) {}
func (noCart) Reconcile(context.Context) wp.Cart     { return wp.EmptyCart() }
func (noCart) ClearCart(context.Context)             {}

// Manager owns the token lifecycle. All methods are safe for concurrent
// use; the state mutex is never held across a network call.
//
// Every change of identity (login, logout) bumps a generation counter.
// Background work records the generation it started in and drops its
// result if the counter moved in the meantime.
type Manager struct {
	client         *httpclient.Client
	routes         wp.Routes
	vault          *state.Vault
	cart           CartSync
	logger         *slog.Logger
	consumerKey    string
	consumerSecret string

	refreshes singleflight.Group
	initOnce  sync.Once
	initRes   *async.Future[bool]

	mu   sync.RWMutex
	sess Session
	gen  uint64
}

var _ oauth2.TokenSource = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; the component attribute is added by New.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCart connects the cart synchronizer notified on session changes.
func WithCart(c CartSync) Option {
	return func(m *Manager) {
		if c != nil {
			m.cart = c
		}
	}
}

// WithConsumerCredentials sets the static WooCommerce REST key pair used by
// WooCommerceHeaders.
func WithConsumerCredentials(key, secret string) Option {
	return func(m *Manager) {
		m.consumerKey = key
		m.consumerSecret = secret
	}
}

// New creates a manager and installs its interceptors on client.
func New(client *httpclient.Client, routes wp.Routes, vault *state.Vault, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		routes: routes,
		vault:  vault,
		cart:   noCart{},
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("session"))
	m.InstallInterceptors()
	return m
}

// Client returns the HTTP client carrying the session interceptors.
func (m *Manager) Client() *httpclient.Client {
	return m.client
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess
}

// IsLoggedIn reports whether a validated token is held.
func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.IsAuthenticated && m.sess.Token != ""
}

// Generation returns the session generation counter.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// Token implements oauth2.TokenSource over the in-memory token.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.RLock()
	tok := m.sess.Token
	m.mu.RUnlock()
	if tok == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// WooCommerceHeaders returns Basic auth headers built from the consumer
// key pair, for endpoints that use REST API keys instead of the user token.
func (m *Manager) WooCommerceHeaders() (http.Header, error) {
	return wp.BasicAuthHeaders(m.consumerKey, m.consumerSecret)
}

// Login exchanges credentials for a token. On success the session is
// authenticated, persisted and the cart is reconciled for the new user.
// Any failure leaves the session logged out and returns an *AuthError.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if username == "" || password == "" {
		return Session{}, m.loginFailed(ctx, gen, &AuthError{Message: msgMissingCredentials, Err: ErrMissingCredentials})
	}

	var tr wp.TokenResponse
	resp, err := m.client.PostJSON(anonymous(ctx), m.routes.Token(), wp.Credentials{
		Username: username,
		Password: password,
	}, &tr)
	if err == nil && tr.Token == "" {
		err = errors.Join(httpclient.ErrMalformedResponse, errors.New("token missing from response"))
	}
	if err != nil {
		return Session{}, m.loginFailed(ctx, gen, newAuthError(resp, err))
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return Session{}, &AuthError{Message: msgLoginFailed, Err: ErrSuperseded}
	}
	m.gen++
	m.sess = Session{
		Token:           tr.Token,
		UserEmail:       tr.UserEmail,
		UserNicename:    tr.UserNicename,
		UserDisplayName: tr.UserDisplayName,
		IsAuthenticated: true,
	}
	sess, gen := m.sess, m.gen
	m.mu.Unlock()

	m.persist(ctx)
	m.logger.InfoContext(ctx, "logged in", logger.User(sess.UserNicename), logger.Generation(gen))

	m.cart.ClearCart(ctx)
	m.cart.Reconcile(ctx)
	return sess, nil
}

func newAuthError(resp *httpclient.Response, err error) *AuthError {
	ae := &AuthError{Message: msgLoginFailed, StatusCode: httpclient.StatusCode(err), Err: err}
	if resp != nil {
		if msg, ok := wp.ParseErrorMessage(resp.Body); ok {
			ae.Message = msg
		}
	}
	switch {
	case isAuthStatus(ae.StatusCode), ae.StatusCode == http.StatusBadRequest:
		ae.Err = errors.Join(ErrInvalidCredentials, err)
	case httpclient.IsNetwork(err):
		ae.Message = msgNetworkUnavailable
	}
	return ae
}

func (m *Manager) loginFailed(ctx context.Context, gen uint64, ae *AuthError) error {
	m.logger.WarnContext(ctx, "login failed", logger.Error(ae.Err))
	if m.invalidate(context.WithoutCancel(ctx), gen, "login failed") {
		m.mu.Lock()
		m.sess.LastError = ae.Message
		m.mu.Unlock()
	}
	return ae
}

// ValidateToken asks the server whether the current token is still valid.
// Anything but an explicit confirmation logs out. A result that arrives
// after the session changed is ignored and reported as false.
func (m *Manager) ValidateToken(ctx context.Context) bool {
	return m.validate(ctx, m.Generation())
}

func (m *Manager) validate(ctx context.Context, gen uint64) bool {
	m.mu.RLock()
	tok := m.sess.Token
	m.mu.RUnlock()

	if tok == "" {
		m.invalidate(ctx, gen, "no token")
		return false
	}

	var vr wp.ValidateResponse
	_, err := m.client.PostJSON(ctx, m.routes.TokenValidate(), nil, &vr)
	if errors.Is(err, context.Canceled) {
		return false
	}
	if err != nil || vr.Code != wp.CodeValidToken {
		if err != nil {
			m.logger.WarnContext(ctx, "token validation failed", logger.Error(err))
		}
		m.invalidate(context.WithoutCancel(ctx), gen, "token invalid")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.sess.Token != tok {
		return false
	}
	m.sess.IsAuthenticated = true
	m.sess.LastError = ""
	return true
}

// RefreshToken exchanges the current token for a new one. Concurrent calls
// for the same token share one request, which keeps running if the caller
// that started it gives up. Without a token it returns false and sends
// nothing; a failed refresh logs out.
func (m *Manager) RefreshToken(ctx context.Context) bool {
	m.mu.RLock()
	tok, gen := m.sess.Token, m.gen
	m.mu.RUnlock()
	if tok == "" {
		return false
	}

	ch := m.refreshes.DoChan(tok, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), tok, gen), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) refresh(ctx context.Context, tok string, gen uint64) bool {
	var tr wp.TokenResponse
	_, err := m.client.PostJSON(ctx, m.routes.TokenRefresh(), nil, &tr)
	if err != nil || tr.Token == "" {
		m.logger.WarnContext(ctx, "token refresh failed", logger.Error(err))
		m.invalidate(ctx, gen, "refresh failed")
		return false
	}

	m.mu.Lock()
	if m.gen != gen || m.sess.Token != tok {
		m.mu.Unlock()
		return false
	}
	m.sess.Token = tr.Token
	m.sess.IsAuthenticated = true
	if id := tr.Identity(); !id.IsZero() {
		m.sess.UserEmail, m.sess.UserNicename, m.sess.UserDisplayName = id.Email, id.Nicename, id.DisplayName
	}
	m.mu.Unlock()

	m.persist(ctx)
	m.logger.DebugContext(ctx, "token refreshed", logger.Generation(gen))
	return true
}

// Expiry returns the expiration embedded in the current token. Opaque
// tokens and tokens without exp report false.
func (m *Manager) Expiry() (time.Time, bool) {
	m.mu.RLock()
	tok := m.sess.Token
	m.mu.RUnlock()
	if tok == "" {
		return time.Time{}, false
	}
	c, err := jwt.Decode(tok)
	if err != nil {
		return time.Time{}, false
	}
	return c.Expiry()
}

// EnsureFresh refreshes the token if it expires within d. It reports
// whether a usable token is held afterwards; tokens whose expiry cannot be
// read are assumed fresh.
func (m *Manager) EnsureFresh(ctx context.Context, d time.Duration) bool {
	m.mu.RLock()
	tok := m.sess.Token
	m.mu.RUnlock()
	if tok == "" {
		return false
	}

	c, err := jwt.Decode(tok)
	if err != nil || !c.ExpiresWithin(time.Now(), d) {
		return true
	}
	m.logger.DebugContext(ctx, "token about to expire, refreshing")
	return m.RefreshToken(ctx)
}

// GetUserInfo fetches the profile of the current user. Without a token it
// returns nil, nil and sends nothing.
func (m *Manager) GetUserInfo(ctx context.Context) (*wp.User, error) {
	m.mu.RLock()
	tok, gen := m.sess.Token, m.gen
	m.mu.RUnlock()
	if tok == "" {
		return nil, nil
	}

	var u wp.User
	if _, err := m.client.Get(ctx, m.routes.UsersMe(), &u); err != nil {
		return nil, err
	}

	if m.Generation() == gen {
		if _, err := m.vault.Update(ctx, func(r *state.Record) { r.Profile = &u }); err != nil {
			m.logger.WarnContext(ctx, "failed to persist profile", logger.Error(err))
		}
	}
	return &u, nil
}

// Logout clears the session, the cart and every persisted key. It cannot
// be interrupted by ctx cancellation.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()
	m.clear(context.WithoutCancel(ctx), "logout")
}

// invalidate logs out only if the generation still equals gen, so a stale
// failure cannot end a session that replaced the one it was about.
func (m *Manager) invalidate(ctx context.Context, gen uint64, reason string) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.gen++
	m.mu.Unlock()
	m.clear(ctx, reason)
	return true
}

func (m *Manager) clear(ctx context.Context, reason string) {
	m.mu.Lock()
	tok, user, gen := m.sess.Token, m.sess.UserNicename, m.gen
	m.sess = Session{}
	m.mu.Unlock()

	m.refreshes.Forget(tok)
	m.cart.ClearCart(ctx)
	m.persist(ctx)

	m.logger.InfoContext(ctx, "logged out",
		logger.User(user),
		logger.Reason(reason),
		logger.Generation(gen),
	)
}

// InitializeAuth restores persisted state once per Manager. If a token is
// found it is validated in the background; the returned future resolves to
// the validation result, and the cart is reconciled after a successful
// validation. Later calls return the same future.
func (m *Manager) InitializeAuth(ctx context.Context) *async.Future[bool] {
	m.initOnce.Do(func() {
		m.initRes = m.initialize(ctx)
	})
	return m.initRes
}

func (m *Manager) initialize(ctx context.Context) *async.Future[bool] {
	if m.Session().Token != "" {
		return async.Resolved(m.IsLoggedIn(), nil)
	}

	rec, err := m.vault.Load(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load persisted state", logger.Error(err))
		return async.Resolved(false, err)
	}
	if rec.Token == "" {
		return async.Resolved(false, nil)
	}

	m.mu.Lock()
	if m.sess.Token != "" {
		m.mu.Unlock()
		return async.Resolved(m.IsLoggedIn(), nil)
	}
	m.sess = Session{
		Token:           rec.Token,
		UserEmail:       rec.User.Email,
		UserNicename:    rec.User.Nicename,
		UserDisplayName: rec.User.DisplayName,
	}
	gen := m.gen
	m.mu.Unlock()

	m.cart.Restore(ctx, rec)
	m.logger.DebugContext(ctx, "session restored", logger.User(rec.User.Nicename), logger.Generation(gen))

	return async.Go(ctx, func(ctx context.Context) (bool, error) {
		if !m.validate(ctx, gen) {
			return false, nil
		}
		if m.Generation() == gen {
			m.cart.Reconcile(ctx)
		}
		return true, nil
	})
}

// persist writes the live session into the record. Building the record
// inside the vault update keeps the last write in line with memory.
func (m *Manager) persist(ctx context.Context) {
	_, err := m.vault.Update(ctx, func(r *state.Record) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		r.Token = m.sess.Token
		r.User = m.sess.Identity()
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to persist session", logger.Error(err))
	}
}
