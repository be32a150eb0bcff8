package record

import (
	"unicode"
	"unicode/utf8"
)

func validateID(id string) error {
	if id == "" {
		return invalidIDf("must not be empty")
	}
	if len(id) > MaxIDLength {
		return invalidIDf("exceeds maximum length of %d", MaxIDLength)
	}
	if !utf8.ValidString(id) {
		return invalidIDf("contains invalid UTF-8")
	}
	for _, r := range id {
		if r == '/' {
			return invalidIDf("contains forbidden character %q", r)
		}
		if unicode.IsControl(r) {
			return invalidIDf("contains control character")
		}
	}
	return nil
}
