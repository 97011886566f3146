// Package state persists the client session as one versioned record.
//
// The Vault is the only code that reads or writes the record. Session and
// cart owners submit partial updates through Vault.Update; the Vault merges
// them, drops user-bound fields (profile, cart, nonce) whenever no token is
// present and mirrors the token into a session-scoped tier that is used as
// a fallback when the primary record is missing.
package state
