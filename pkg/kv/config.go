package kv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/storefront/pkg/mongo"
	"github.com/dmitrymomot/storefront/pkg/pg"
	"github.com/dmitrymomot/storefront/pkg/redis"
	"github.com/dmitrymomot/storefront/pkg/secrets"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverS3       = "s3"
)

// sealPurpose binds derived encryption keys to persisted state.
const sealPurpose = "storefront/kv/v1"

// Config selects and configures the durable store.
type Config struct {
	Driver          string `env:"KV_DRIVER" envDefault:"file"`
	Dir             string `env:"KV_DIR" envDefault:".storefront"`
	KeyPrefix       string `env:"KV_KEY_PREFIX" envDefault:"storefront:"`
	EncryptionKey   string `env:"KV_ENCRYPTION_KEY"`
	MongoCollection string `env:"KV_MONGO_COLLECTION" envDefault:"kv_entries"`

	Redis    redis.Config
	Postgres pg.Config
	Mongo    mongo.Config
	S3       S3Config
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger used while opening the store, for example for
// migration output.
func WithLogger(l *slog.Logger) OpenOption {
	return func(o *openOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open builds the store described by cfg. The postgres driver applies its
// migrations before returning. When EncryptionKey is set the store is
// wrapped in an EncryptedStore.
func Open(ctx context.Context, cfg Config, opts ...OpenOption) (Store, error) {
	o := openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		store Store
		err   error
	)

	switch cfg.Driver {
	case DriverMemory:
		store = NewMemoryStore()
	case DriverFile, "":
		store, err = NewFileStore(cfg.Dir)
	case DriverRedis:
		client, cerr := redis.Connect(ctx, cfg.Redis)
		if cerr != nil {
			return nil, cerr
		}
		store = &RedisStore{db: client, prefix: cfg.KeyPrefix, owned: true}
	case DriverPostgres:
		pool, cerr := pg.Connect(ctx, cfg.Postgres)
		if cerr != nil {
			return nil, cerr
		}
		if merr := MigratePostgres(ctx, pool, cfg.Postgres, o.logger); merr != nil {
			pool.Close()
			return nil, merr
		}
		store = &PostgresStore{pool: pool, prefix: cfg.KeyPrefix, owned: true}
	case DriverMongo:
		db, cerr := mongo.NewWithDatabase(ctx, cfg.Mongo)
		if cerr != nil {
			return nil, cerr
		}
		store = &MongoStore{coll: db.Collection(cfg.MongoCollection), prefix: cfg.KeyPrefix, owned: true}
	case DriverS3:
		store, err = NewS3Store(ctx, cfg.S3, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EncryptionKey == "" {
		return store, nil
	}

	key, err := secrets.ParseKey(cfg.EncryptionKey)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sealer, err := secrets.NewSealer(key, sealPurpose)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return NewEncryptedStore(store, sealer), nil
}
