package crypto

import (
	"strings"

	"github.com/jmcleod/healthseal/internal/util"
)

// LooksEncrypted guesses whether data is an envelope rather than legacy
// plaintext. A v1 envelope is any standard base64 text decoding to at least
// MinEnvelopeSize bytes, so long base64-looking plaintext can be misread;
// callers fall back to plain parsing when decryption then yields nothing.
func LooksEncrypted(data string) bool {
	if rest, ok := strings.CutPrefix(data, v2Prefix); ok {
		alg, _, ok := strings.Cut(rest, ":")
		return ok && isAEADScheme(Scheme(alg))
	}
	raw, err := util.Base64Decode(data)
	return err == nil && len(raw) >= MinEnvelopeSize
}

// EnvelopeScheme reports which scheme wrote data, judged by the same rules
// as LooksEncrypted.
func EnvelopeScheme(data string) (Scheme, bool) {
	if !LooksEncrypted(data) {
		return "", false
	}
	if rest, ok := strings.CutPrefix(data, v2Prefix); ok {
		alg, _, _ := strings.Cut(rest, ":")
		return Scheme(alg), true
	}
	return SchemeV1, true
}
