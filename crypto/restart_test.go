package crypto_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/healthseal/crypto"
	"github.com/jmcleod/healthseal/internal/util"
	"github.com/jmcleod/healthseal/key"
	kcbbolt "github.com/jmcleod/healthseal/keychain/bbolt"
)

var fastKDF = kcbbolt.KDFParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 32}

func openKeychain(t *testing.T, path string) *kcbbolt.Keychain {
	t.Helper()
	kc, err := kcbbolt.NewFromFile(path, kcbbolt.WithKDFParams(fastKDF))
	require.NoError(t, err)
	require.NoError(t, kc.Unlock("correct horse battery staple"))
	return kc
}

func TestEnvelopeSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keychain.db")

	kc := openKeychain(t, path)
	env, err := crypto.New(key.NewStore(kc)).Encrypt(ctx, "diabetes")
	require.NoError(t, err)
	require.NoError(t, kc.Close())

	kc = openKeychain(t, path)
	defer kc.Close()
	store := key.NewStore(kc)
	c := crypto.New(store)

	got, err := c.Decrypt(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, "diabetes", got)

	// Clearing the key makes old envelopes unreadable; a fresh key is
	// generated on the next call.
	require.NoError(t, store.ClearKey(ctx))
	got, err = c.Decrypt(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestLockedKeychainIsLoud(t *testing.T) {
	ctx := context.Background()
	kc, err := kcbbolt.NewFromFile(filepath.Join(t.TempDir(), "keychain.db"), kcbbolt.WithKDFParams(fastKDF))
	require.NoError(t, err)
	defer kc.Close()

	c := crypto.New(key.NewStore(kc))
	_, err = c.Encrypt(ctx, "diabetes")
	assert.ErrorIs(t, err, crypto.ErrKeyStorage)
	assert.ErrorIs(t, err, key.ErrKeyStorage)

	_, err = c.Decrypt(ctx, util.Base64Encode(make([]byte, 40)))
	assert.ErrorIs(t, err, crypto.ErrKeyStorage)
}
