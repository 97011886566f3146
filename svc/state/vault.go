package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/storefront/pkg/kv"
	"github.com/dmitrymomot/storefront/pkg/logger"
)

// Default storage keys.
const (
	DefaultKey        = "storefront/state"
	DefaultSessionKey = "storefront/session-token"
)

// Vault is the single read/write path for persisted state. It keeps the
// last written record in memory so partial updates from different owners
// (session fields, cart fields) merge instead of overwriting each other.
type Vault struct {
	primary    kv.Store
	session    kv.Store
	key        string
	sessionKey string
	logger     *slog.Logger
	now        func() time.Time

	mu  sync.Mutex
	rec Record
}

// Option configures a Vault.
type Option func(*Vault)

// WithSessionStore sets the session-scoped tier that mirrors the token.
// Defaults to a process-local memory store.
func WithSessionStore(s kv.Store) Option {
	return func(v *Vault) {
		if s != nil {
			v.session = s
		}
	}
}

// WithKey overrides the primary record key.
func WithKey(key string) Option {
	return func(v *Vault) {
		if key != "" {
			v.key = key
		}
	}
}

// WithLogger sets the logger for load and persist failures.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock sets the time source used for SavedAt.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVault creates a vault over primary. The record is not read until Load.
func NewVault(primary kv.Store, opts ...Option) *Vault {
	v := &Vault{
		primary:    primary,
		session:    kv.NewMemoryStore(),
		key:        DefaultKey,
		sessionKey: DefaultSessionKey,
		logger:     logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With(logger.Component("state"))
	return v
}

// Load reads the persisted record, replacing the cached copy. A missing,
// corrupt or foreign-version record yields an empty record. When the
// primary record has no token the session-scoped tier is consulted.
// Only store failures are returned as errors.
func (v *Vault) Load(ctx context.Context) (Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, err := v.readPrimary(ctx)
	if err != nil {
		return Record{}, err
	}

	if rec.Token == "" {
		tok, err := v.session.Get(ctx, v.sessionKey)
		switch {
		case err == nil && len(tok) > 0:
			rec = Record{Version: CurrentVersion, Token: string(tok)}
		case err != nil && !errors.Is(err, kv.ErrNotFound):
			v.logger.WarnContext(ctx, "session token tier unavailable", logger.Error(err))
		}
	}

	v.rec = rec
	return rec.clone(), nil
}

func (v *Vault) readPrimary(ctx context.Context) (Record, error) {
	raw, err := v.primary.Get(ctx, v.key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return Record{}, nil
	case err != nil:
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		v.logger.WarnContext(ctx, "discarding persisted state", logger.Error(errors.Join(ErrCorruptRecord, err)))
		return Record{}, nil
	}
	if rec.Version != CurrentVersion {
		v.logger.WarnContext(ctx, "discarding persisted state",
			logger.Error(fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)))
		return Record{}, nil
	}
	rec.enforce()
	return rec, nil
}

// Current returns a copy of the cached record without touching storage.
func (v *Vault) Current() Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rec.clone()
}

// Update applies fn to a copy of the cached record and writes the result.
// Updates are serialized; fn must not call back into the Vault. The cache
// only advances when the write succeeds.
func (v *Vault) Update(ctx context.Context, fn func(*Record)) (Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.rec.clone()
	fn(&next)
	next = next.clone()
	next.enforce()
	next.Version = CurrentVersion
	next.SavedAt = v.now().UTC()

	if next.IsZero() {
		if err := v.deleteAll(ctx); err != nil {
			return v.rec.clone(), err
		}
		v.rec = Record{}
		return Record{}, nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return v.rec.clone(), errors.Join(ErrPersistFailed, err)
	}
	if err := v.primary.Set(ctx, v.key, raw); err != nil {
		return v.rec.clone(), errors.Join(ErrPersistFailed, err)
	}
	if err := v.mirrorToken(ctx, next.Token); err != nil {
		v.logger.WarnContext(ctx, "session token tier not updated", logger.Error(err))
	}

	v.rec = next
	return next.clone(), nil
}

// Clear removes the record and the session-scoped token together. The
// cached copy is reset even when storage fails.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rec = Record{}
	return v.deleteAll(ctx)
}

func (v *Vault) deleteAll(ctx context.Context) error {
	var errs []error
	if err := v.primary.Delete(ctx, v.key); err != nil {
		errs = append(errs, err)
	}
	if err := v.session.Delete(ctx, v.sessionKey); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrPersistFailed}, errs...)...)
	}
	return nil
}

func (v *Vault) mirrorToken(ctx context.Context, token string) error {
	if token == "" {
		return v.session.Delete(ctx, v.sessionKey)
	}
	return v.session.Set(ctx, v.sessionKey, []byte(token))
}
