// Package kv provides the byte-level key-value stores used to persist
// session state: an in-memory store for the session-scoped tier, a
// directory-backed store for CLI use, Redis, PostgreSQL, MongoDB and S3
// stores for shared deployments, and an encrypting decorator that seals
// values with pkg/secrets. The PostgreSQL store ships its own goose
// migration for the kv_entries table.
//
// Open picks an implementation from Config:
//
//	store, err := kv.Open(ctx, kv.Config{Driver: kv.DriverFile, Dir: ".storefront"})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// All stores report missing keys with ErrNotFound.
package kv
