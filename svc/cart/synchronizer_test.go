package cart_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/httpclient"
	"github.com/dmitrymomot/storefront/pkg/kv"
	"github.com/dmitrymomot/storefront/svc/cart"
	"github.com/dmitrymomot/storefront/svc/state"
	"github.com/dmitrymomot/storefront/svc/wp"
	"github.com/dmitrymomot/storefront/svc/wp/wptest"
)

type fixture struct {
	srv   *wptest.Server
	vault *state.Vault
	store *kv.MemoryStore
	sync  *cart.Synchronizer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv := wptest.NewT(t)
	store := kv.NewMemoryStore()
	vault := state.NewVault(store)
	client := httpclient.New(httpclient.WithNoRetry())
	t.Cleanup(client.CloseIdleConnections)

	// A token in the record lets cart and nonce be persisted.
	_, err := vault.Update(context.Background(), func(r *state.Record) { r.Token = "persist-me" })
	require.NoError(t, err)

	return &fixture{
		srv:   srv,
		vault: vault,
		store: store,
		sync:  cart.New(client, srv.Routes, vault),
	}
}

func TestFetchCart_ReplacesMirrorAndCapturesNonce(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.srv.SeedCart("", 42, 2)

	assert.Equal(t, cart.PhaseEmpty, f.sync.Phase())
	c := f.sync.FetchCart(context.Background())

	assert.Equal(t, 2, c.ItemsCount)
	require.Len(t, c.Items, 1)
	assert.Equal(t, wp.Amount("2000"), c.Items[0].LineTotal())
	assert.Equal(t, cart.PhaseSynced, f.sync.Phase())
	assert.Equal(t, "n-1", f.sync.Nonce())

	rec := f.vault.Current()
	require.NotNil(t, rec.Cart)
	assert.Equal(t, 2, rec.Cart.ItemsCount)
	assert.Equal(t, "n-1", rec.Nonce)
}

func TestFetchCart_FailureYieldsEmptyCart(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.srv.SeedCart("", 42, 1)
	f.sync.FetchCart(context.Background())

	f.srv.FailNext(wp.PathCart, http.StatusInternalServerError, `{"code":"boom","message":"boom"}`)
	c := f.sync.FetchCart(context.Background())

	assert.Equal(t, wp.EmptyCart(), c)
	assert.Equal(t, wp.EmptyCart(), f.sync.Cart())
	assert.Equal(t, cart.PhaseEmpty, f.sync.Phase())
}

func TestFetchCart_MalformedBody(t *testing.T) {
	t.Parallel()
	f := setup(t)

	f.srv.FailNext(wp.PathCart, http.StatusOK, `<html>`)
	assert.Equal(t, wp.EmptyCart(), f.sync.FetchCart(context.Background()))
}

func TestAddItem_RotatesNonce(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	f.srv.SetNonce("n-1")
	f.sync.SaveNonce(ctx, "n-1")

	c, err := f.sync.AddItem(ctx, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.ItemsCount)

	reqs := f.srv.Requests(wp.PathCartAddItem)
	require.Len(t, reqs, 1)
	assert.Equal(t, "n-1", reqs[0].Header.Get(wp.HeaderNonce))

	assert.Equal(t, "n-2", f.sync.Nonce())
	assert.Equal(t, "n-2", f.vault.Current().Nonce)
	assert.Equal(t, cart.PhaseSynced, f.sync.Phase())
}

func TestAddItem_WithoutNonceFetchesCartFirst(t *testing.T) {
	t.Parallel()
	f := setup(t)

	c, err := f.sync.AddItem(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemsCount)

	reqs := f.srv.Requests(wp.PathCartAddItem)
	require.Len(t, reqs, 1)
	assert.Equal(t, "n-1", reqs[0].Header.Get(wp.HeaderNonce))
	assert.Len(t, f.srv.Requests(wp.PathCart), 1)
	assert.Equal(t, "n-2", f.sync.Nonce())
}

func TestAddItem_RejectedNonceIsRefreshedOnce(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.sync.SaveNonce(ctx, "expired")

	c, err := f.sync.AddItem(ctx, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemsCount)

	reqs := f.srv.Requests(wp.PathCartAddItem)
	require.Len(t, reqs, 2)
	assert.Equal(t, "expired", reqs[0].Header.Get(wp.HeaderNonce))
	assert.Equal(t, "n-1", reqs[1].Header.Get(wp.HeaderNonce))
	assert.Len(t, f.srv.Requests(wp.PathCart), 1)
	assert.Equal(t, "n-2", f.sync.Nonce())
}

func TestRequestWithNonce_FallsBackToPersistedNonce(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	_, err := f.vault.Update(ctx, func(r *state.Record) { r.Nonce = "n-5" })
	require.NoError(t, err)
	f.srv.SetNonce("n-5")

	fresh := cart.New(httpclient.New(httpclient.WithNoRetry()), f.srv.Routes, f.vault)
	assert.Empty(t, fresh.Nonce())

	resp, err := fresh.RequestWithNonce(ctx, http.MethodPost, f.srv.Routes.CartAddItem(), wp.AddItemRequest{ID: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	reqs := f.srv.Requests(wp.PathCartAddItem)
	require.Len(t, reqs, 1)
	assert.Equal(t, "n-5", reqs[0].Header.Get(wp.HeaderNonce))
	assert.Equal(t, "n-6", fresh.Nonce())
}

func TestRequestWithNonce_ProceedsWithoutNonce(t *testing.T) {
	t.Parallel()
	f := setup(t)

	resp, err := f.sync.RequestWithNonce(context.Background(), http.MethodPost, f.srv.Routes.CartAddItem(), wp.AddItemRequest{ID: 1, Quantity: 1})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, wp.IsNonceError(resp.Body))
}

func TestMutationFailure_KeepsCart(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.srv.SeedCart("", 42, 2)
	before := f.sync.FetchCart(ctx)

	f.srv.FailNext(wp.PathCartUpdate, http.StatusInternalServerError, `{"code":"x","message":"x"}`)
	c, err := f.sync.UpdateItem(ctx, "item-42", 5)
	require.Error(t, err)
	assert.Equal(t, before, c)
	assert.Equal(t, before, f.sync.Cart())
}

func TestUpdateAndRemoveItem(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.srv.SeedCart("", 42, 1)
	f.sync.FetchCart(ctx)

	c, err := f.sync.UpdateItem(ctx, "item-42", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.ItemsCount)
	assert.Equal(t, int64(4*wptest.UnitPrice), c.Totals.TotalPrice.Int())

	c, err = f.sync.RemoveItem(ctx, "item-42")
	require.NoError(t, err)
	assert.Equal(t, 0, c.ItemsCount)
	assert.Empty(t, c.Items)
}

func TestMutations_ValidateArguments(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	_, err := f.sync.AddItem(ctx, 0, 1)
	assert.ErrorIs(t, err, cart.ErrInvalidProduct)
	_, err = f.sync.AddItem(ctx, 1, 0)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
	_, err = f.sync.UpdateItem(ctx, "", 1)
	assert.ErrorIs(t, err, cart.ErrInvalidItemKey)
	_, err = f.sync.RemoveItem(ctx, "")
	assert.ErrorIs(t, err, cart.ErrInvalidItemKey)
	assert.Empty(t, f.srv.Requests(""))
}

func TestUpdateCart_Idempotent(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	payload := &wp.Cart{
		Items:      []wp.CartItem{{Key: "k", ProductID: 3, Quantity: 2}},
		ItemsCount: 2,
	}
	h := http.Header{"X-Wc-Store-Api-Nonce": {"n-9"}}

	first := f.sync.UpdateCart(ctx, payload, h)
	second := f.sync.UpdateCart(ctx, payload, h)
	assert.Equal(t, first, second)
	assert.Equal(t, second, f.sync.Cart())
	assert.Equal(t, "n-9", f.sync.Nonce())

	assert.Equal(t, wp.Amount("0"), first.Totals.TotalPrice)
	assert.Equal(t, wp.Amount("0"), first.Items[0].LineTotal())

	assert.Equal(t, wp.EmptyCart(), f.sync.UpdateCart(ctx, nil, nil))
	assert.Equal(t, "n-9", f.sync.Nonce(), "nonce kept when headers carry none")
}

func TestClearCart(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.srv.SeedCart("", 42, 1)
	f.sync.FetchCart(ctx)
	epoch := f.sync.Epoch()

	f.sync.ClearCart(ctx)

	assert.Equal(t, wp.EmptyCart(), f.sync.Cart())
	assert.Empty(t, f.sync.Nonce())
	assert.Equal(t, epoch+1, f.sync.Epoch())
	assert.Equal(t, cart.PhaseEmpty, f.sync.Phase())

	rec := f.vault.Current()
	assert.Nil(t, rec.Cart)
	assert.Empty(t, rec.Nonce)
	assert.Equal(t, "persist-me", rec.Token)
}

func TestClearCart_DiscardsInFlightFetch(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.srv.SeedCart("", 42, 3)

	release := f.srv.Hold(wp.PathCart)
	t.Cleanup(release)

	done := make(chan wp.Cart, 1)
	go func() { done <- f.sync.FetchCart(ctx) }()

	require.Eventually(t, func() bool { return len(f.srv.Requests(wp.PathCart)) == 1 }, 2*time.Second, 5*time.Millisecond)
	f.sync.ClearCart(ctx)
	release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return")
	}

	assert.Equal(t, wp.EmptyCart(), f.sync.Cart())
	assert.Empty(t, f.sync.Nonce())
	assert.Nil(t, f.vault.Current().Cart)
}

func TestClearCart_DiscardsInFlightMutationNonce(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.sync.FetchCart(ctx)
	require.Equal(t, "n-1", f.sync.Nonce())

	release := f.srv.Hold(wp.PathCartAddItem)
	t.Cleanup(release)

	done := make(chan error, 1)
	go func() {
		_, err := f.sync.AddItem(ctx, 7, 1)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(f.srv.Requests(wp.PathCartAddItem)) == 1 }, 2*time.Second, 5*time.Millisecond)
	f.sync.ClearCart(ctx)
	release()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, cart.ErrStaleResponse)
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not return")
	}

	assert.Empty(t, f.sync.Nonce())
	assert.Empty(t, f.vault.Current().Nonce)
	assert.Equal(t, wp.EmptyCart(), f.sync.Cart())
}

func TestFetchCart_CancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.srv.SeedCart("", 42, 2)

	release := f.srv.Hold(wp.PathCart)
	t.Cleanup(release)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan wp.Cart, 1)
	go func() { firstDone <- f.sync.FetchCart(first) }()
	require.Eventually(t, func() bool { return len(f.srv.Requests(wp.PathCart)) == 1 }, 2*time.Second, 5*time.Millisecond)

	second := make(chan wp.Cart, 1)
	go func() { second <- f.sync.FetchCart(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.Equal(t, wp.EmptyCart(), <-firstDone)
	release()

	select {
	case c := <-second:
		assert.Equal(t, 2, c.ItemsCount)
	case <-time.After(2 * time.Second):
		t.Fatal("joined fetch did not return")
	}
	assert.Equal(t, 2, f.sync.Cart().ItemsCount)
	assert.Len(t, f.srv.Requests(wp.PathCart), 1)
}

func TestFetchCart_ConcurrentCallsShareRequest(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	release := f.srv.Hold(wp.PathCart)
	t.Cleanup(release)

	const n = 5
	results := make(chan wp.Cart, n)
	go func() { results <- f.sync.FetchCart(ctx) }()
	require.Eventually(t, func() bool { return len(f.srv.Requests(wp.PathCart)) == 1 }, 2*time.Second, 5*time.Millisecond)
	for range n - 1 {
		go func() { results <- f.sync.FetchCart(ctx) }()
	}
	time.Sleep(50 * time.Millisecond)
	release()

	for range n {
		<-results
	}
	assert.Len(t, f.srv.Requests(wp.PathCart), 1)
}

func TestRestore(t *testing.T) {
	t.Parallel()
	f := setup(t)

	saved := wp.EmptyCart()
	saved.ItemsCount = 4
	f.sync.Restore(context.Background(), state.Record{Cart: &saved, Nonce: "n-3"})

	assert.Equal(t, 4, f.sync.Cart().ItemsCount)
	assert.Equal(t, "n-3", f.sync.Nonce())
	assert.Equal(t, cart.PhaseSynced, f.sync.Phase())
}

func TestSynchronizer_PrettyPermalinks(t *testing.T) {
	t.Parallel()
	srv := wptest.NewPretty()
	t.Cleanup(srv.Close)
	srv.SeedCart("", 7, 1)

	client := httpclient.New(httpclient.WithNoRetry())
	t.Cleanup(client.CloseIdleConnections)
	s := cart.New(client, srv.Routes, state.NewVault(kv.NewMemoryStore()))

	assert.Contains(t, srv.Routes.Cart(), "/wp-json/wc/store/v1/cart")
	assert.Equal(t, 1, s.FetchCart(context.Background()).ItemsCount)

	c, err := s.AddItem(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemsCount)
	assert.Len(t, srv.Requests(wp.PathCartAddItem), 1)
}
