package crypto

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jmcleod/healthseal/internal/util"
)

type medication struct {
	Name   string   `json:"name"`
	Dose   string   `json:"dose"`
	Times  []string `json:"times,omitempty"`
	Active bool     `json:"active"`
}

func TestStructured_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher()

	in := []medication{
		{Name: "metformin", Dose: "500mg", Times: []string{"08:00", "20:00"}, Active: true},
		{Name: "vitamin d", Dose: "1000IU"},
	}
	env, err := EncryptStructured(ctx, c, in)
	require.NoError(t, err)
	assert.True(t, LooksEncrypted(env))

	out := DecryptStructured(ctx, c, env, []medication(nil))
	assert.Equal(t, in, out)
}

func TestStructured_Property(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher(WithScheme(SchemeChaCha20))
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.SliceOfN(rapid.String(), 1, 8).Draw(rt, "values")
		env, err := EncryptStructured(ctx, c, in)
		if err != nil {
			rt.Fatalf("EncryptStructured failed: %v", err)
		}
		out := DecryptStructured(ctx, c, env, []string{"fallback"})
		assert.Equal(rt, in, out)
	})
}

func TestStructured_Fallback(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher()
	fallback := []medication{{Name: "default"}}

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, fallback, DecryptStructured(ctx, c, "", fallback))
	})

	t.Run("Rejected", func(t *testing.T) {
		assert.Equal(t, fallback, DecryptStructured(ctx, c, "not an envelope", fallback))
	})

	t.Run("BitFlipped", func(t *testing.T) {
		env, err := EncryptStructured(ctx, c, []medication{{Name: "metformin", Dose: "500mg"}})
		require.NoError(t, err)
		raw, err := util.Base64Decode(env)
		require.NoError(t, err)

		for _, i := range []int{NonceSize, len(raw) / 2, len(raw) - 1} {
			tampered := util.CopyBytes(raw)
			tampered[i] ^= 0x01
			assert.Equal(t, fallback, DecryptStructured(ctx, c, util.Base64Encode(tampered), fallback), "byte %d", i)
		}
	})

	t.Run("NotJSON", func(t *testing.T) {
		env, err := c.Encrypt(ctx, "plain words")
		require.NoError(t, err)
		assert.Equal(t, fallback, DecryptStructured(ctx, c, env, fallback))
	})

	t.Run("WrongShape", func(t *testing.T) {
		env, err := EncryptStructured(ctx, c, map[string]int{"a": 1})
		require.NoError(t, err)
		assert.Equal(t, fallback, DecryptStructured(ctx, c, env, fallback))
	})

	t.Run("KeyUnavailable", func(t *testing.T) {
		env, err := c.Encrypt(ctx, `[{"name":"x"}]`)
		require.NoError(t, err)
		broken := New(&staticKeys{err: errors.New("locked")})
		assert.Equal(t, fallback, DecryptStructured(ctx, broken, env, fallback))
	})
}

func TestStructured_MarshalFailure(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher()
	_, err := EncryptStructured(ctx, c, map[string]any{"bad": make(chan int)})
	assert.ErrorIs(t, err, ErrEncryption)
}
