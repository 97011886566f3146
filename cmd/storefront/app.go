package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/storefront/pkg/config"
	"github.com/dmitrymomot/storefront/pkg/httpclient"
	"github.com/dmitrymomot/storefront/pkg/kv"
	"github.com/dmitrymomot/storefront/pkg/logger"
	"github.com/dmitrymomot/storefront/svc/cart"
	"github.com/dmitrymomot/storefront/svc/session"
	"github.com/dmitrymomot/storefront/svc/state"
	"github.com/dmitrymomot/storefront/svc/wp"
)

type appConfig struct {
	WP   wp.Config
	HTTP httpclient.Config
	KV   kv.Config
	Log  logger.Config

	// Tokens expiring within this window are refreshed before use.
	RefreshWindow time.Duration `env:"SESSION_REFRESH_WINDOW" envDefault:"5m"`
}

// overrides are command-line values that win over the environment.
type overrides struct {
	envFiles []string
	baseURL  string
	stateDir string
	verbose  bool
}

func loadConfig(o overrides) (appConfig, error) {
	if len(o.envFiles) > 0 {
		if err := config.LoadEnv(o.envFiles...); err != nil {
			return appConfig{}, err
		}
	}

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return appConfig{}, err
	}
	if o.baseURL != "" {
		cfg.WP.BaseURL = o.baseURL
	}
	if o.stateDir != "" {
		cfg.KV.Driver = kv.DriverFile
		cfg.KV.Dir = o.stateDir
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// app is the wired client stack for a single command invocation.
type app struct {
	cfg     appConfig
	log     *slog.Logger
	store   kv.Store
	vault   *state.Vault
	client  *httpclient.Client
	cart    *cart.Synchronizer
	session *session.Manager
}

func newApp(ctx context.Context, cfg appConfig, logOut io.Writer) (*app, error) {
	log := logger.FromConfig(cfg.Log,
		logger.WithOutput(logOut),
		logger.WithContextExtractors(httpclient.RequestIDExtractor),
	)

	routes, err := cfg.WP.Routes()
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(ctx, cfg.KV, kv.WithLogger(log))
	if err != nil {
		return nil, err
	}

	client := httpclient.FromConfig(cfg.HTTP, httpclient.WithLogger(log))
	vault := state.NewVault(store, state.WithLogger(log))
	sync := cart.New(client, routes, vault, cart.WithLogger(log))
	mgr := session.New(client, routes, vault,
		session.WithCart(sync),
		session.WithLogger(log),
		session.WithConsumerCredentials(cfg.WP.ConsumerKey, cfg.WP.ConsumerSecret),
	)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		vault:   vault,
		client:  client,
		cart:    sync,
		session: mgr,
	}, nil
}

// restore loads the persisted session and waits for its validation.
func (a *app) restore(ctx context.Context) (bool, error) {
	return a.session.InitializeAuth(ctx).AwaitContext(ctx)
}

func (a *app) requireLogin(ctx context.Context) error {
	ok, err := a.restore(ctx)
	if err != nil {
		return err
	}
	if !ok || !a.session.EnsureFresh(ctx, a.cfg.RefreshWindow) {
		return errNotLoggedIn
	}
	return nil
}

func (a *app) Close() error {
	a.client.CloseIdleConnections()
	return a.store.Close()
}

var errNotLoggedIn = errors.New("not logged in, run `storefront login` first")
