// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv (optional .env files) and
// github.com/caarlos0/env/v11 (struct tag parsing). Each configuration type is
// parsed once and cached for the lifetime of the process; WithPrefix lets the
// same struct be loaded several times under different variable prefixes,
// which is how the storefront CLI configures its primary and session-scoped
// key-value stores from one kv.Config type.
//
// # Usage
//
//	type Backend struct {
//	    BaseURL string `env:"WP_BASE_URL" envDefault:"http://localhost:8080"`
//	}
//
//	var cfg Backend
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Errors
//
//   - ErrParsingConfig  – env parsing failed (missing required var, bad value).
//   - ErrLoadingEnvFile – LoadEnv could not read a file.
//   - ErrNilPointer     – nil target passed to Load.
//
// ResetCache clears the cache between tests.
package config
