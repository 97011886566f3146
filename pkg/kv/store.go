package kv

import "context"

// Store is a byte-oriented key-value store. Implementations must be safe for
// concurrent use. Get returns ErrNotFound for missing keys; Delete ignores
// keys that do not exist.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// prefixed applies prefix to the non-empty keys.
func prefixed(prefix string, keys []string) []string {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			full = append(full, prefix+k)
		}
	}
	return full
}
