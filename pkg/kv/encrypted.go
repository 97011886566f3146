package kv

import (
	"context"

	"github.com/dmitrymomot/storefront/pkg/secrets"
)

// EncryptedStore seals values before handing them to the wrapped store.
// Keys are stored in the clear.
type EncryptedStore struct {
	next   Store
	sealer *secrets.Sealer
}

func NewEncryptedStore(next Store, sealer *secrets.Sealer) *EncryptedStore {
	return &EncryptedStore{next: next, sealer: sealer}
}

func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.sealer.Open(sealed)
}

func (s *EncryptedStore) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return err
	}
	return s.next.Set(ctx, key, sealed)
}

func (s *EncryptedStore) Delete(ctx context.Context, keys ...string) error {
	return s.next.Delete(ctx, keys...)
}

func (s *EncryptedStore) Close() error {
	return s.next.Close()
}
