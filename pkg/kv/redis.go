package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore stores values as plain Redis strings under prefix+key.
type RedisStore struct {
	db     redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedisStore wraps an existing client. Close does not close a client
// passed in this way.
func NewRedisStore(db redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{db: db, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	b, err := s.db.Get(ctx, s.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, errors.Join(ErrStoreFailed, err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.db.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	full := prefixed(s.prefix, keys)
	if len(full) == 0 {
		return nil
	}
	if err := s.db.Del(ctx, full...).Err(); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

// Conn returns the underlying client.
func (s *RedisStore) Conn() redis.UniversalClient {
	return s.db
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
