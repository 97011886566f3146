// Package cart mirrors the WooCommerce Store API cart.
//
// A Synchronizer owns the local cart copy and the rotating nonce that cart
// mutations must carry. It shares the session's HTTP client, persists both
// values through the state vault and exposes a small lifecycle
// (empty, loading, synced) driven by pkg/statemachine.
//
//	sync := cart.New(client, routes, vault, cart.WithLogger(log))
//	c := sync.FetchCart(ctx)
//	c, err := sync.AddItem(ctx, 42, 1)
package cart
