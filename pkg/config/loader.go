package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache keeps one parsed copy per (type, prefix) pair.
type cache struct {
	mu     sync.RWMutex
	values map[string]any
	onces  map[string]*sync.Once
}

var (
	globalCache = newCache()

	dotenvOnce sync.Once
)

func newCache() *cache {
	return &cache{
		values: make(map[string]any),
		onces:  make(map[string]*sync.Once),
	}
}

// Option adjusts how a single Load call parses the environment.
type Option func(*loadOptions)

type loadOptions struct {
	prefix string
}

// WithPrefix prepends prefix to every env tag of the target struct, so the
// same struct type can be loaded for several backends (e.g. "PRIMARY_", "SESSION_").
// Each prefix is cached separately.
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.prefix = prefix
	}
}

// Load parses environment variables into v.
//
// The default .env file is read once per process if present. Every distinct
// configuration type (and prefix) is parsed once and served from cache
// afterwards, so calling Load from several components is cheap.
//
// Example:
//
//	type Backend struct {
//		BaseURL string `env:"WP_BASE_URL" envDefault:"http://localhost:8080"`
//	}
//
//	var cfg Backend
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	dotenvOnce.Do(func() {
		// Missing .env is fine: the environment may be populated by the runtime.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	key := cacheKey[T](o.prefix)
	if cached, ok := globalCache.get(key); ok {
		*v = cached.(T)
		return nil
	}

	once := globalCache.once(key)

	var parseErr error
	once.Do(func() {
		var parsed T
		if err := env.ParseWithOptions(&parsed, env.Options{Prefix: o.prefix}); err != nil {
			parseErr = errors.Join(ErrParsingConfig, err)
			return
		}
		globalCache.set(key, parsed)
	})
	if parseErr != nil {
		// Allow a later call to retry once the environment is fixed.
		globalCache.forget(key)
		return parseErr
	}

	if cached, ok := globalCache.get(key); ok {
		*v = cached.(T)
		return nil
	}
	return ErrConfigNotLoaded
}

// MustLoad works like Load but panics on failure.
// Use it for configuration the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("config: failed to load required configuration: %v", err))
	}
}

// LoadEnv reads the given .env files into the process environment.
// Values already present in the environment are not overridden.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// ResetCache drops every cached configuration. Intended for tests.
func ResetCache() {
	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()
	globalCache.values = make(map[string]any)
	globalCache.onces = make(map[string]*sync.Once)
}

func (c *cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *cache) set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

func (c *cache) once(key string) *sync.Once {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.onces[key]
	if !ok {
		o = new(sync.Once)
		c.onces[key] = o
	}
	return o
}

func (c *cache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.onces, key)
	delete(c.values, key)
}

func cacheKey[T any](prefix string) string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return prefix + "|" + t.PkgPath() + "." + t.String()
}
