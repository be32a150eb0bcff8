// Package crypto implements authenticated encryption of individual stored
// fields. Envelopes are printable strings suitable for any text column.
//
// The default scheme (SchemeV1) is a SHA-256 counter keystream XORed with the
// plaintext followed by an encrypt-then-MAC tag. It is kept byte-compatible
// with previously written data. SchemeAESGCM and SchemeChaCha20 write
// versioned envelopes with a standard AEAD; every scheme is always readable.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jmcleod/healthseal/internal/util"
)

// KeyProvider supplies the base64-encoded data key. *key.Store implements it.
type KeyProvider interface {
	GetOrCreateKey(ctx context.Context) (string, error)
}

// Recorder receives one event per Encrypt, Decrypt, or Open call.
type Recorder interface {
	RecordOperation(ctx context.Context, operation, outcome string)
}

// Operation and outcome labels passed to a Recorder.
const (
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"

	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type noopRecorder struct{}

func (noopRecorder) RecordOperation(context.Context, string, string) {}

// Cipher encrypts and decrypts field values. Safe for concurrent use.
type Cipher struct {
	keys     KeyProvider
	scheme   Scheme
	rand     io.Reader
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithScheme selects the envelope format used by Encrypt. Default: SchemeV1.
func WithScheme(s Scheme) Option {
	return func(c *Cipher) {
		c.scheme = s
	}
}

// WithRandom sets the nonce source. Default: crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) {
		c.rand = r
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cipher) {
		c.logger = l
	}
}

// WithRecorder sets the metrics hook.
func WithRecorder(r Recorder) Option {
	return func(c *Cipher) {
		c.recorder = r
	}
}

// New returns a Cipher that takes its key from keys.
func New(keys KeyProvider, opts ...Option) *Cipher {
	c := &Cipher{
		keys:     keys,
		scheme:   SchemeV1,
		rand:     rand.Reader,
		logger:   slog.New(slog.DiscardHandler),
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scheme returns the scheme Encrypt writes.
func (c *Cipher) Scheme() Scheme {
	return c.scheme
}

func (c *Cipher) secret(ctx context.Context) (string, error) {
	secret, err := c.keys.GetOrCreateKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyStorage, err)
	}
	return secret, nil
}

// Encrypt seals plaintext into an envelope. The empty string maps to the
// empty string without touching the key. Every call uses a fresh nonce.
func (c *Cipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	secret, err := c.secret(ctx)
	if err != nil {
		c.recorder.RecordOperation(ctx, OpEncrypt, OutcomeError)
		return "", err
	}

	var envelope string
	if isAEADScheme(c.scheme) {
		envelope, err = c.sealAEAD(secret, plaintext)
	} else {
		envelope, err = c.sealV1(secret, plaintext)
	}
	if err != nil {
		c.recorder.RecordOperation(ctx, OpEncrypt, OutcomeError)
		c.logger.Error("encrypting field failed", slog.String("scheme", string(c.scheme)), slog.Any("error", err))
		return "", err
	}
	c.recorder.RecordOperation(ctx, OpEncrypt, OutcomeSuccess)
	return envelope, nil
}

func (c *Cipher) sealV1(secret, plaintext string) (string, error) {
	nonce, err := util.RandomBytesFrom(c.rand, NonceSize)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	data := util.UTF8Bytes(plaintext)
	stream := DeriveKeyStream(secret, util.HexEncode(nonce), len(data))
	ciphertext, err := util.Xor(data, stream)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	tag := v1Tag(secret, ciphertext)
	return util.Base64Encode(util.Concat(nonce, ciphertext, tag)), nil
}

func (c *Cipher) sealAEAD(secret, plaintext string) (string, error) {
	aead, err := newAEAD(c.scheme, secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	nonce, err := util.RandomBytesFrom(c.rand, aead.NonceSize())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	sealed := aead.Seal(nonce, nonce, util.UTF8Bytes(plaintext), []byte(c.scheme))
	return v2Prefix + string(c.scheme) + ":" + util.Base64Encode(sealed), nil
}

// v1Tag is the first TagSize bytes of SHA-256 over secret || hex(ciphertext).
func v1Tag(secret string, ciphertext []byte) []byte {
	sum := sha256.Sum256([]byte(secret + util.HexEncode(ciphertext)))
	return sum[:TagSize]
}

// Decrypt opens an envelope. Invalid, tampered, or foreign input yields ""
// with a nil error; only a key storage failure is returned as an error.
func (c *Cipher) Decrypt(ctx context.Context, envelope string) (string, error) {
	plaintext, err := c.Open(ctx, envelope)
	if err != nil {
		if errors.Is(err, ErrDecryption) {
			c.logger.Debug("rejected envelope", slog.String("reason", err.Error()))
			return "", nil
		}
		return "", err
	}
	return plaintext, nil
}

// Open is Decrypt with the rejection reason reported as an error wrapping
// ErrDecryption.
func (c *Cipher) Open(ctx context.Context, envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	secret, err := c.secret(ctx)
	if err != nil {
		c.recorder.RecordOperation(ctx, OpDecrypt, OutcomeError)
		return "", err
	}

	var plaintext string
	if rest, ok := strings.CutPrefix(envelope, v2Prefix); ok {
		plaintext, err = openAEAD(secret, rest)
	} else {
		plaintext, err = openV1(secret, envelope)
	}
	switch {
	case err == nil:
		c.recorder.RecordOperation(ctx, OpDecrypt, OutcomeSuccess)
	case errors.Is(err, ErrDecryption):
		c.recorder.RecordOperation(ctx, OpDecrypt, OutcomeRejected)
	default:
		c.recorder.RecordOperation(ctx, OpDecrypt, OutcomeError)
	}
	return plaintext, err
}

func openV1(secret, envelope string) (string, error) {
	raw, err := util.Base64Decode(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(raw) < MinEnvelopeSize {
		return "", ErrEnvelopeTooShort
	}

	nonce := raw[:NonceSize]
	ciphertext := raw[NonceSize : len(raw)-TagSize]
	storedTag := raw[len(raw)-TagSize:]

	// Authenticate before any keystream work.
	if subtle.ConstantTimeCompare(v1Tag(secret, ciphertext), storedTag) != 1 {
		return "", ErrTagMismatch
	}

	stream := DeriveKeyStream(secret, util.HexEncode(nonce), len(ciphertext))
	data, err := util.Xor(ciphertext, stream)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	plaintext, err := util.UTF8String(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidUTF8, err)
	}
	return plaintext, nil
}

// openAEAD handles the part of a v2 envelope after the "v2:" prefix.
func openAEAD(secret, rest string) (string, error) {
	alg, body, ok := strings.Cut(rest, ":")
	if !ok {
		return "", ErrMalformedEnvelope
	}
	scheme := Scheme(alg)
	if !isAEADScheme(scheme) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, alg)
	}
	aead, err := newAEAD(scheme, secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyStorage, err)
	}
	raw, err := util.Base64Decode(body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	ns := aead.NonceSize()
	if len(raw) < ns+aead.Overhead()+1 {
		return "", ErrEnvelopeTooShort
	}
	data, err := aead.Open(nil, raw[:ns], raw[ns:], []byte(scheme))
	if err != nil {
		return "", ErrTagMismatch
	}
	plaintext, err := util.UTF8String(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidUTF8, err)
	}
	return plaintext, nil
}
