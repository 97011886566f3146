package cart

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/storefront/pkg/httpclient"
	"github.com/dmitrymomot/storefront/pkg/logger"
	"github.com/dmitrymomot/storefront/pkg/statemachine"
	"github.com/dmitrymomot/storefront/svc/state"
	"github.com/dmitrymomot/storefront/svc/wp"
)

const fetchKey = "cart"

// Synchronizer keeps a local mirror of the server cart and the rotating
// Store API nonce. The mirror is replaced wholesale by every successful
// response; it is never edited locally.
//
// Every reconciliation is tagged with the epoch it started in. ClearCart
// bumps the epoch, so responses to requests issued before a clear are
// dropped instead of resurrecting the old cart.
type Synchronizer struct {
	client *httpclient.Client
	routes wp.Routes
	vault  *state.Vault
	logger *slog.Logger
	fsm    *statemachine.Machine[Phase, trigger]
	group  singleflight.Group

	mu    sync.RWMutex
	cart  wp.Cart
	nonce string
	epoch uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger; the component attribute is added by New.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a synchronizer that talks through client, which is shared
// with the session manager so bearer and auth-failure interceptors apply.
func New(client *httpclient.Client, routes wp.Routes, vault *state.Vault, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		client: client,
		routes: routes,
		vault:  vault,
		logger: logger.Discard(),
		fsm:    newLifecycle(),
		cart:   wp.EmptyCart(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("cart"))
	return s
}

// Cart returns a copy of the local mirror.
func (s *Synchronizer) Cart() wp.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Normalize()
}

// Nonce returns the in-memory nonce.
func (s *Synchronizer) Nonce() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonce
}

// Epoch returns the clear counter.
func (s *Synchronizer) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Phase returns the lifecycle phase of the mirror.
func (s *Synchronizer) Phase() Phase {
	return s.fsm.Current()
}

// FetchCart loads the server cart. Concurrent calls share one request.
// Failures are logged and yield the empty cart. A cancelled caller gets
// the current mirror while the shared request completes.
func (s *Synchronizer) FetchCart(ctx context.Context) wp.Cart {
	// Joined callers share one fetch; a caller that gives up does not
	// cancel it for the rest.
	ch := s.group.DoChan(fetchKey, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(wp.Cart)
	case <-ctx.Done():
		return s.Cart()
	}
}

func (s *Synchronizer) fetch(ctx context.Context) wp.Cart {
	epoch := s.Epoch()
	s.fire(ctx, triggerFetch)

	var payload wp.Cart
	resp, err := s.client.Get(ctx, s.routes.Cart(), &payload)
	if err != nil {
		s.logger.WarnContext(ctx, "cart fetch failed", logger.Error(err))
		return s.fail(ctx, epoch)
	}

	c, err := s.apply(ctx, epoch, payload.Normalize(), resp.Header, triggerLoaded)
	if err != nil {
		s.logger.DebugContext(ctx, "discarding cart response", logger.Error(err))
	}
	return c
}

func (s *Synchronizer) fail(ctx context.Context, epoch uint64) wp.Cart {
	s.mu.Lock()
	if epoch != s.epoch {
		c := s.cart.Normalize()
		s.mu.Unlock()
		return c
	}
	s.cart = wp.EmptyCart()
	s.mu.Unlock()

	s.fire(ctx, triggerFailed)
	s.persist(ctx)
	return wp.EmptyCart()
}

// UpdateCart reconciles the mirror with a cart payload received elsewhere.
// Missing sub-fields get defaults and a nil payload means the empty cart.
// Applying the same payload twice leaves the same state.
func (s *Synchronizer) UpdateCart(ctx context.Context, payload *wp.Cart, header http.Header) wp.Cart {
	c := wp.EmptyCart()
	if payload != nil {
		c = payload.Normalize()
	}

	s.mu.Lock()
	s.cart = c
	if n, ok := wp.NonceFromHeader(header); ok {
		s.nonce = n
	}
	s.mu.Unlock()

	s.fire(ctx, triggerMutated)
	s.persist(ctx)
	return c.Normalize()
}

// ClearCart empties the mirror and the nonce, removes their persisted copies
// and invalidates every reconciliation still in flight.
func (s *Synchronizer) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.cart = wp.EmptyCart()
	s.nonce = ""
	s.mu.Unlock()

	s.group.Forget(fetchKey)
	s.fire(ctx, triggerCleared)

	if _, err := s.vault.Update(ctx, func(r *state.Record) {
		r.Cart = nil
		r.Nonce = ""
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to clear persisted cart", logger.Error(err))
	}
}

// Restore seeds the mirror from a persisted record without any request.
func (s *Synchronizer) Restore(ctx context.Context, rec state.Record) {
	s.mu.Lock()
	if rec.Cart != nil {
		s.cart = rec.Cart.Normalize()
	}
	if rec.Nonce != "" {
		s.nonce = rec.Nonce
	}
	s.mu.Unlock()

	if rec.Cart != nil {
		s.fire(ctx, triggerMutated)
	}
}

// Reconcile refreshes the mirror after the session changed hands.
func (s *Synchronizer) Reconcile(ctx context.Context) wp.Cart {
	return s.FetchCart(ctx)
}

// SaveNonce replaces the current nonce. An empty value clears it.
func (s *Synchronizer) SaveNonce(ctx context.Context, nonce string) {
	s.mu.Lock()
	changed := s.nonce != nonce
	s.nonce = nonce
	s.mu.Unlock()

	if changed {
		s.persist(ctx)
	}
}

// ClearNonce forgets the nonce in memory and in the persisted record.
func (s *Synchronizer) ClearNonce(ctx context.Context) {
	s.SaveNonce(ctx, "")
}

// currentNonce prefers memory and falls back to the persisted record.
func (s *Synchronizer) currentNonce() string {
	if n := s.Nonce(); n != "" {
		return n
	}
	return s.vault.Current().Nonce
}

// RequestWithNonce sends a request carrying the current nonce, if any, and
// captures a rotated nonce from the response headers. Without a nonce the
// request is sent as is and the server decides. A nonce that arrives after
// ClearCart is dropped.
func (s *Synchronizer) RequestWithNonce(ctx context.Context, method, url string, body any) (*httpclient.Response, error) {
	epoch := s.Epoch()
	header := http.Header{}
	if n := s.currentNonce(); n != "" {
		header.Set(wp.HeaderNonce, n)
	}

	resp, err := s.client.Do(ctx, httpclient.Request{
		Method: method,
		URL:    url,
		Body:   body,
		Header: header,
	})
	if resp != nil {
		if n, ok := wp.NonceFromHeader(resp.Header); ok {
			s.saveNonceAt(ctx, epoch, n)
		}
	}
	return resp, err
}

// saveNonceAt stores nonce only while epoch is still current.
func (s *Synchronizer) saveNonceAt(ctx context.Context, epoch uint64, nonce string) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	changed := s.nonce != nonce
	s.nonce = nonce
	s.mu.Unlock()

	if changed {
		s.persist(ctx)
	}
}

// AddItem adds qty units of a product and returns the resulting cart.
func (s *Synchronizer) AddItem(ctx context.Context, productID, qty int) (wp.Cart, error) {
	if productID <= 0 {
		return s.Cart(), ErrInvalidProduct
	}
	if qty <= 0 {
		return s.Cart(), ErrInvalidQuantity
	}
	return s.mutate(ctx, s.routes.CartAddItem(), wp.AddItemRequest{ID: productID, Quantity: qty})
}

// UpdateItem sets the quantity of an existing line.
func (s *Synchronizer) UpdateItem(ctx context.Context, key string, qty int) (wp.Cart, error) {
	if key == "" {
		return s.Cart(), ErrInvalidItemKey
	}
	if qty <= 0 {
		return s.Cart(), ErrInvalidQuantity
	}
	return s.mutate(ctx, s.routes.CartUpdateItem(), wp.UpdateItemRequest{Key: key, Quantity: qty})
}

// RemoveItem drops a line from the cart.
func (s *Synchronizer) RemoveItem(ctx context.Context, key string) (wp.Cart, error) {
	if key == "" {
		return s.Cart(), ErrInvalidItemKey
	}
	return s.mutate(ctx, s.routes.CartRemoveItem(), wp.RemoveItemRequest{Key: key})
}

// mutate leaves the mirror untouched when the call fails. Without a nonce
// the cart is fetched first so the server issues one; a rejected nonce is
// refreshed the same way and the call retried once. A 401/403 sent with the
// session token ends the session, which bumps the epoch and stops the retry.
func (s *Synchronizer) mutate(ctx context.Context, url string, body any) (wp.Cart, error) {
	epoch := s.Epoch()
	if s.currentNonce() == "" {
		s.FetchCart(ctx)
		if s.Epoch() != epoch {
			return s.Cart(), ErrStaleResponse
		}
	}

	resp, err := s.RequestWithNonce(ctx, http.MethodPost, url, body)
	if err != nil && resp != nil && wp.IsNonceError(resp.Body) {
		if s.Epoch() != epoch {
			return s.Cart(), ErrStaleResponse
		}
		s.logger.DebugContext(ctx, "nonce rejected, refreshing", logger.Status(resp.StatusCode))
		s.ClearNonce(ctx)
		s.FetchCart(ctx)
		if s.Epoch() != epoch {
			return s.Cart(), ErrStaleResponse
		}
		resp, err = s.RequestWithNonce(ctx, http.MethodPost, url, body)
	}
	if err != nil {
		return s.Cart(), err
	}

	var payload wp.Cart
	if err := resp.Decode(&payload); err != nil {
		return s.Cart(), err
	}
	return s.apply(ctx, epoch, payload.Normalize(), resp.Header, triggerMutated)
}

// apply installs c when epoch is still current.
func (s *Synchronizer) apply(ctx context.Context, epoch uint64, c wp.Cart, header http.Header, ev trigger) (wp.Cart, error) {
	s.mu.Lock()
	if epoch != s.epoch {
		cur := s.cart.Normalize()
		s.mu.Unlock()
		return cur, ErrStaleResponse
	}
	s.cart = c
	if n, ok := wp.NonceFromHeader(header); ok {
		s.nonce = n
	}
	s.mu.Unlock()

	s.fire(ctx, ev)
	s.persist(ctx)
	return c.Normalize(), nil
}

// persist writes the live mirror. The record is built inside the vault
// update so the last write always reflects the latest memory state.
func (s *Synchronizer) persist(ctx context.Context) {
	_, err := s.vault.Update(ctx, func(r *state.Record) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		c := s.cart
		r.Cart = &c
		r.Nonce = s.nonce
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to persist cart", logger.Error(err))
	}
}

func (s *Synchronizer) fire(ctx context.Context, ev trigger) {
	if err := s.fsm.Fire(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.DebugContext(ctx, "cart phase unchanged", logger.Reason(string(ev)), logger.Error(err))
	}
}
