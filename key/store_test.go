package key

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jmcleod/healthseal/internal/util"
	"github.com/jmcleod/healthseal/keychain"
	"github.com/jmcleod/healthseal/keychain/memory"
)

func TestMain(m *testing.M) {
	// memguard starts its re-keying goroutine on first use.
	memguard.NewEnclave([]byte{0})
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

// countingKeychain records how often the store writes and slows reads down so
// concurrent callers overlap.
type countingKeychain struct {
	keychain.Keychain
	sets   atomic.Int32
	delay  time.Duration
	getErr error
}

func (c *countingKeychain) Get(ctx context.Context, alias string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	time.Sleep(c.delay)
	return c.Keychain.Get(ctx, alias)
}

func (c *countingKeychain) Set(ctx context.Context, alias, value string, opts ...keychain.SetOption) error {
	c.sets.Add(1)
	return c.Keychain.Set(ctx, alias, value, opts...)
}

// lingeringKeychain holds on to a value it has read before returning it, so a
// ClearKey can run while a load is in flight.
type lingeringKeychain struct {
	keychain.Keychain
	linger time.Duration
	reads  chan struct{}
}

func (l *lingeringKeychain) Get(ctx context.Context, alias string) (string, bool, error) {
	v, found, err := l.Keychain.Get(ctx, alias)
	select {
	case l.reads <- struct{}{}:
	default:
	}
	time.Sleep(l.linger)
	return v, found, err
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestStore_GetOrCreateKey(t *testing.T) {
	ctx := t.Context()
	kc := memory.New()
	s := NewStore(kc)

	secret, err := s.GetOrCreateKey(ctx)
	require.NoError(t, err)

	raw, err := util.Base64Decode(secret)
	require.NoError(t, err)
	assert.Len(t, raw, SecretSize)

	stored, found, err := kc.Get(ctx, DefaultAlias)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, secret, stored)

	again, err := s.GetOrCreateKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, secret, again, "existing key must not be regenerated")
}

func TestStore_ReusesPersistedKey(t *testing.T) {
	ctx := t.Context()
	kc := memory.New()

	first, err := NewStore(kc).GetOrCreateKey(ctx)
	require.NoError(t, err)

	// A fresh Store models an application relaunch.
	second, err := NewStore(kc).GetOrCreateKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_StoresWithRequireUnlocked(t *testing.T) {
	ctx := t.Context()
	kc := memory.New()
	s := NewStore(kc)
	_, err := s.GetOrCreateKey(ctx)
	require.NoError(t, err)

	kc.Lock()
	_, _, err = kc.Get(ctx, DefaultAlias)
	assert.ErrorIs(t, err, keychain.ErrLocked)
}

func TestStore_SingleFlightCreation(t *testing.T) {
	ctx := t.Context()
	kc := &countingKeychain{Keychain: memory.New(), delay: 10 * time.Millisecond}
	s := NewStore(kc)

	const callers = 32
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			secret, err := s.GetOrCreateKey(ctx)
			assert.NoError(t, err)
			results[i] = secret
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), kc.sets.Load(), "exactly one key must be generated")
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestStore_DeterministicRandom(t *testing.T) {
	ctx := t.Context()
	seed := bytes.Repeat([]byte{0x42}, SecretSize)
	s := NewStore(memory.New(), WithRandom(bytes.NewReader(seed)), WithAlias("custom"))

	secret, err := s.GetOrCreateKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, util.Base64Encode(seed), secret)
}

func TestStore_Errors(t *testing.T) {
	ctx := t.Context()

	t.Run("RandomFailure", func(t *testing.T) {
		s := NewStore(memory.New(), WithRandom(failingReader{}))
		_, err := s.GetOrCreateKey(ctx)
		assert.ErrorIs(t, err, ErrKeyStorage)
	})

	t.Run("KeychainReadFailure", func(t *testing.T) {
		boom := errors.New("keychain unavailable")
		s := NewStore(&countingKeychain{Keychain: memory.New(), getErr: boom})
		_, err := s.GetOrCreateKey(ctx)
		assert.ErrorIs(t, err, ErrKeyStorage)
		assert.ErrorIs(t, err, boom)

		_, err = s.HasKey(ctx)
		assert.ErrorIs(t, err, ErrKeyStorage)
	})

	t.Run("KeychainWriteRejected", func(t *testing.T) {
		kc := memory.New()
		kc.Lock()
		s := NewStore(kc)
		_, err := s.GetOrCreateKey(ctx)
		assert.ErrorIs(t, err, ErrKeyStorage)
		assert.ErrorIs(t, err, keychain.ErrLocked)
	})

	t.Run("EmptyStoredKey", func(t *testing.T) {
		kc := memory.New()
		require.NoError(t, kc.Set(ctx, DefaultAlias, ""))
		_, err := NewStore(kc).GetOrCreateKey(ctx)
		assert.ErrorIs(t, err, ErrKeyStorage)
	})
}

func TestStore_HasKeyAndClearKey(t *testing.T) {
	ctx := t.Context()
	kc := memory.New()
	s := NewStore(kc)

	has, err := s.HasKey(ctx)
	require.NoError(t, err)
	assert.False(t, has, "HasKey must not create a key")

	first, err := s.GetOrCreateKey(ctx)
	require.NoError(t, err)

	has, err = s.HasKey(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.ClearKey(ctx))
	has, err = s.HasKey(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	second, err := s.GetOrCreateKey(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "a cleared key is gone for good")
}

func TestStore_ClearKeyDuringLoad(t *testing.T) {
	ctx := t.Context()
	inner := memory.New()
	old, err := NewStore(inner).GetOrCreateKey(ctx)
	require.NoError(t, err)

	kc := &lingeringKeychain{Keychain: inner, linger: 100 * time.Millisecond, reads: make(chan struct{}, 1)}
	s := NewStore(kc)

	loaded := make(chan string, 1)
	go func() {
		secret, err := s.GetOrCreateKey(ctx)
		assert.NoError(t, err)
		loaded <- secret
	}()

	<-kc.reads
	require.NoError(t, s.ClearKey(ctx))
	assert.Equal(t, old, <-loaded, "the load began before the clear")

	_, found, err := inner.Get(ctx, DefaultAlias)
	require.NoError(t, err)
	assert.False(t, found)

	has, err := s.HasKey(ctx)
	require.NoError(t, err)
	assert.False(t, has, "a cleared key must not linger in the cache")

	kc.linger = 0
	fresh, err := s.GetOrCreateKey(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)

	stored, found, err := inner.Get(ctx, DefaultAlias)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fresh, stored)
}

func TestStore_CallerCancellationIsPerCaller(t *testing.T) {
	kc := &countingKeychain{Keychain: memory.New(), delay: 100 * time.Millisecond}
	s := NewStore(kc)

	first, cancel := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.GetOrCreateKey(first)
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	secondKey := make(chan string, 1)
	go func() {
		secret, err := s.GetOrCreateKey(t.Context())
		assert.NoError(t, err)
		secondKey <- secret
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-firstErr
	assert.ErrorIs(t, err, ErrKeyStorage)
	assert.ErrorIs(t, err, context.Canceled)

	secret := <-secondKey
	assert.NotEmpty(t, secret)
	assert.Equal(t, int32(1), kc.sets.Load())

	_, err = s.GetOrCreateKey(first)
	assert.NoError(t, err, "a cached key is returned even to a cancelled caller")
}
