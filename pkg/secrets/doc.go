// Package secrets seals persisted client state with AES-256-GCM.
//
// A Sealer derives a purpose-bound key from a 32-byte master key using
// HKDF-SHA-256 (golang.org/x/crypto/hkdf); the GCM nonce is prepended to the
// ciphertext so sealed blobs are self-contained. kv.EncryptedStore uses a
// Sealer so the bearer token and cart nonce never reach disk or Redis in
// clear text.
//
//	key, _ := secrets.ParseKey(os.Getenv("STORE_ENCRYPTION_KEY"))
//	s, err := secrets.NewSealer(key, "storefront-state-v1")
//	sealed, _ := s.Seal([]byte(`{"token":"abc"}`))
//	plain, _ := s.Open(sealed)
package secrets
