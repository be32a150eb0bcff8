package util

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/text/encoding"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// Base64Encode uses the standard, padded alphabet.
func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// UTF8Bytes returns the UTF-8 encoding of s. Ill-formed sequences are
// replaced with U+FFFD, the way a text encoder would.
func UTF8Bytes(s string) []byte {
	out, _, err := transform.String(runes.ReplaceIllFormed(), s)
	if err != nil {
		return []byte(s)
	}
	return []byte(out)
}

// UTF8String decodes b strictly and fails on the first invalid sequence.
func UTF8String(b []byte) (string, error) {
	out, _, err := transform.Bytes(encoding.UTF8Validator, b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
