// Package key manages the lifecycle of the single long-lived data key used to
// encrypt sensitive fields. The key is generated lazily on first use, kept in
// a keychain, and cached in process inside a memguard Enclave.
package key

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sync/singleflight"

	"github.com/jmcleod/healthseal/internal/util"
	"github.com/jmcleod/healthseal/keychain"
)

const (
	// DefaultAlias is the keychain alias the data key is stored under.
	DefaultAlias = "healthseal.data-key"
	// SecretSize is the size of the raw data key in bytes.
	SecretSize = 32
)

// Store obtains or lazily generates the data key.
type Store struct {
	kc     keychain.Keychain
	alias  string
	rand   io.Reader
	logger *slog.Logger

	group singleflight.Group
	// lifecycle serialises keychain loads against ClearKey so a load that
	// read the old key cannot cache it after the key was deleted.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	cached    *memguard.Enclave
}

// Option configures a Store.
type Option func(*Store)

// WithAlias overrides the keychain alias.
func WithAlias(alias string) Option {
	return func(s *Store) {
		s.alias = alias
	}
}

// WithRandom sets the entropy source used to generate the key.
func WithRandom(r io.Reader) Option {
	return func(s *Store) {
		s.rand = r
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore returns a Store backed by kc.
func NewStore(kc keychain.Keychain, opts ...Option) *Store {
	s := &Store{
		kc:     kc,
		alias:  DefaultAlias,
		rand:   rand.Reader,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateKey returns the base64-encoded data key, generating and storing
// a new one if the keychain has none. Concurrent first calls share a single
// generation. The shared load does not observe any one caller's cancellation;
// each caller stops waiting when its own ctx is done.
func (s *Store) GetOrCreateKey(ctx context.Context) (string, error) {
	if secret, ok := s.cachedSecret(); ok {
		return secret, nil
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyStorage, err)
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(s.alias, func() (any, error) {
		return s.loadOrCreate(loadCtx)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrKeyStorage, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *Store) loadOrCreate(ctx context.Context) (string, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if secret, ok := s.cachedSecret(); ok {
		return secret, nil
	}

	secret, found, err := s.kc.Get(ctx, s.alias)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", ErrKeyStorage, s.alias, err)
	}
	if found && secret == "" {
		return "", fmt.Errorf("%w: %s holds an empty key", ErrKeyStorage, s.alias)
	}
	if !found {
		raw, err := util.RandomBytesFrom(s.rand, SecretSize)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrKeyStorage, err)
		}
		secret = util.Base64Encode(raw)
		util.WipeBytes(raw)

		if err := s.kc.Set(ctx, s.alias, secret, keychain.WithRequireUnlocked()); err != nil {
			return "", fmt.Errorf("%w: storing %s: %w", ErrKeyStorage, s.alias, err)
		}
		s.logger.Info("generated data key", slog.String("alias", s.alias))
	}

	s.mu.Lock()
	s.cached = memguard.NewEnclave([]byte(secret))
	s.mu.Unlock()
	return secret, nil
}

func (s *Store) cachedSecret() (string, bool) {
	s.mu.RLock()
	enclave := s.cached
	s.mu.RUnlock()
	if enclave == nil {
		return "", false
	}
	buf, err := enclave.Open()
	if err != nil {
		return "", false
	}
	defer buf.Destroy()
	return string(buf.Bytes()), true
}

// HasKey reports whether a data key exists without creating one.
func (s *Store) HasKey(ctx context.Context) (bool, error) {
	if _, ok := s.cachedSecret(); ok {
		return true, nil
	}
	_, found, err := s.kc.Get(ctx, s.alias)
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %w", ErrKeyStorage, s.alias, err)
	}
	return found, nil
}

// ClearKey deletes the data key. Everything encrypted under it becomes
// permanently unreadable.
func (s *Store) ClearKey(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	err := s.kc.Delete(ctx, s.alias)
	s.group.Forget(s.alias)
	if err != nil {
		return fmt.Errorf("%w: deleting %s: %w", ErrKeyStorage, s.alias, err)
	}
	s.logger.Warn("data key cleared, existing envelopes are unrecoverable", slog.String("alias", s.alias))
	return nil
}
