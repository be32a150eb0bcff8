package crypto

import (
	"crypto/cipher"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jmcleod/healthseal/internal/util"
)

// Scheme selects the envelope format Encrypt produces.
type Scheme string

const (
	// SchemeV1 is the baseline format: base64(nonce || ciphertext || tag),
	// with a SHA-256 counter keystream and a truncated SHA-256 tag over the
	// hex ciphertext.
	SchemeV1 Scheme = "v1"
	// SchemeAESGCM produces "v2:aesgcm:" + base64(nonce || AES-256-GCM output).
	SchemeAESGCM Scheme = "aesgcm"
	// SchemeChaCha20 produces "v2:chacha20:" + base64(nonce || ChaCha20-Poly1305 output).
	SchemeChaCha20 Scheme = "chacha20"
)

const (
	NonceSize = 12
	TagSize   = 16
	// MinEnvelopeSize is the smallest decoded v1 envelope: one byte of
	// ciphertext between nonce and tag.
	MinEnvelopeSize = NonceSize + 1 + TagSize

	v2Prefix  = "v2:"
	v2KDFInfo = "healthseal:field:v2:"
)

// ParseScheme converts a configuration string into a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeV1:
		return SchemeV1, nil
	case SchemeAESGCM:
		return SchemeAESGCM, nil
	case SchemeChaCha20:
		return SchemeChaCha20, nil
	default:
		return "", fmt.Errorf("unknown envelope scheme %q", s)
	}
}

func isAEADScheme(s Scheme) bool {
	return s == SchemeAESGCM || s == SchemeChaCha20
}

// newAEAD derives the per-scheme field key from the data key with HKDF and
// returns the matching AEAD.
func newAEAD(scheme Scheme, secret string) (cipher.AEAD, error) {
	raw, err := util.Base64Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decoding data key: %w", err)
	}
	defer util.WipeBytes(raw)

	k, err := util.HKDF(raw, nil, []byte(v2KDFInfo+string(scheme)))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(k)

	switch scheme {
	case SchemeAESGCM:
		return util.NewAESGCM(k)
	case SchemeChaCha20:
		aead, err := chacha20poly1305.New(k)
		if err != nil {
			return nil, fmt.Errorf("creating ChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("scheme %q is not an AEAD scheme", scheme)
	}
}
