package kv

import (
	"context"
	"errors"

	"github.com/dmitrymomot/storefront/pkg/mongo"
	"github.com/dmitrymomot/storefront/pkg/pg"
	"github.com/dmitrymomot/storefront/pkg/redis"
)

// healthKey is read by the generic check; it is never written.
const healthKey = "storefront/healthcheck"

// Healthcheck returns a readiness check for the backend behind s. Network
// stores are pinged through their connection package; other stores are
// checked with a read, where ErrNotFound counts as healthy.
func Healthcheck(s Store) func(context.Context) error {
	if e, ok := s.(*EncryptedStore); ok {
		return Healthcheck(e.next)
	}

	switch st := s.(type) {
	case *RedisStore:
		return redis.Healthcheck(st.db)
	case *PostgresStore:
		return pg.Healthcheck(st.pool)
	case *MongoStore:
		return mongo.Healthcheck(st.coll.Database().Client())
	}

	return func(ctx context.Context) error {
		if _, err := s.Get(ctx, healthKey); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	}
}
