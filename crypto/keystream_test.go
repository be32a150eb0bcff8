package crypto

import (
	"encoding/hex"
	"testing"
)

func TestDeriveKeyStream(t *testing.T) {
	t.Run("KnownVector", func(t *testing.T) {
		got := DeriveKeyStream("secret", "00", 40)
		want := "fd740fc9e141df3ab9e52b42a947a8b6beb83094d419a63427a0d9fb2e95ccfc608ca0ee9e265170"
		if hex.EncodeToString(got) != want {
			t.Errorf("expected %s, got %x", want, got)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := DeriveKeyStream("k", "0a0b", 100)
		b := DeriveKeyStream("k", "0a0b", 100)
		if hex.EncodeToString(a) != hex.EncodeToString(b) {
			t.Error("identical inputs must give identical streams")
		}
	})

	t.Run("ExactLength", func(t *testing.T) {
		for _, n := range []int{1, 31, 32, 33, 64, 65, 1000} {
			if got := len(DeriveKeyStream("k", "00", n)); got != n {
				t.Errorf("length %d: got %d bytes", n, got)
			}
		}
	})

	t.Run("PrefixStable", func(t *testing.T) {
		short := DeriveKeyStream("k", "00", 10)
		long := DeriveKeyStream("k", "00", 70)
		if hex.EncodeToString(long[:10]) != hex.EncodeToString(short) {
			t.Error("a shorter stream must be a prefix of a longer one")
		}
	})

	t.Run("NonceSensitive", func(t *testing.T) {
		a := DeriveKeyStream("k", "00", 32)
		b := DeriveKeyStream("k", "01", 32)
		if hex.EncodeToString(a) == hex.EncodeToString(b) {
			t.Error("different nonces must give different streams")
		}
	})

	t.Run("NonPositiveLength", func(t *testing.T) {
		if len(DeriveKeyStream("k", "00", 0)) != 0 || len(DeriveKeyStream("k", "00", -5)) != 0 {
			t.Error("expected empty stream")
		}
	})
}
