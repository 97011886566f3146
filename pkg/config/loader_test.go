package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/config"
)

type backendConfig struct {
	BaseURL string        `env:"CFGTEST_BASE_URL" envDefault:"http://localhost:8080"`
	Retries int           `env:"CFGTEST_RETRIES" envDefault:"2"`
	Timeout time.Duration `env:"CFGTEST_TIMEOUT" envDefault:"5s"`
	Pretty  bool          `env:"CFGTEST_PRETTY" envDefault:"false"`
}

type requiredConfig struct {
	Secret string `env:"CFGTEST_SECRET,required"`
}

type storeConfig struct {
	Driver string `env:"DRIVER" envDefault:"memory"`
}

type singletonConfig struct {
	Value string `env:"CFGTEST_SINGLETON" envDefault:"default"`
}

func TestLoad_Defaults(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CFGTEST_BASE_URL")
	os.Unsetenv("CFGTEST_RETRIES")

	var cfg backendConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.Pretty)
}

func TestLoad_FromEnvironment(t *testing.T) {
	config.ResetCache()
	t.Setenv("CFGTEST_BASE_URL", "https://shop.example.com")
	t.Setenv("CFGTEST_RETRIES", "5")
	t.Setenv("CFGTEST_PRETTY", "true")

	var cfg backendConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "https://shop.example.com", cfg.BaseURL)
	assert.Equal(t, 5, cfg.Retries)
	assert.True(t, cfg.Pretty)
}

func TestLoad_MissingRequired(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CFGTEST_SECRET")

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	// A failed parse is not cached.
	t.Setenv("CFGTEST_SECRET", "s3cr3t")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "s3cr3t", cfg.Secret)
}

func TestLoad_Cached(t *testing.T) {
	config.ResetCache()
	t.Setenv("CFGTEST_SINGLETON", "first")

	var first singletonConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("CFGTEST_SINGLETON", "second")

	var second singletonConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)

	config.ResetCache()
	var third singletonConfig
	require.NoError(t, config.Load(&third))
	assert.Equal(t, "second", third.Value)
}

func TestLoad_WithPrefix(t *testing.T) {
	config.ResetCache()
	t.Setenv("PRIMARY_DRIVER", "redis")
	t.Setenv("SESSION_DRIVER", "memory")

	var primary, session storeConfig
	require.NoError(t, config.Load(&primary, config.WithPrefix("PRIMARY_")))
	require.NoError(t, config.Load(&session, config.WithPrefix("SESSION_")))

	assert.Equal(t, "redis", primary.Driver)
	assert.Equal(t, "memory", session.Driver)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *backendConfig
	err := config.Load(cfg)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CFGTEST_FROM_FILE")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CFGTEST_FROM_FILE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CFGTEST_FROM_FILE") })

	require.NoError(t, config.LoadEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CFGTEST_FROM_FILE"))

	err := config.LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestMustLoad_Panics(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CFGTEST_SECRET")

	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
