package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// EncryptStructured marshals value to JSON and encrypts the text.
func EncryptStructured[T any](ctx context.Context, c *Cipher, value T) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling value: %w", ErrEncryption, err)
	}
	return c.Encrypt(ctx, string(data))
}

// DecryptStructured decrypts envelope and unmarshals the JSON into a T. It
// returns fallback when the envelope is empty, rejected, or not valid JSON
// for T, and when the key is unavailable.
func DecryptStructured[T any](ctx context.Context, c *Cipher, envelope string, fallback T) T {
	plaintext, err := c.Decrypt(ctx, envelope)
	if err != nil {
		c.logger.Warn("decrypting structured value failed", slog.Any("error", err))
		return fallback
	}
	if plaintext == "" {
		return fallback
	}
	var v T
	if err := json.Unmarshal([]byte(plaintext), &v); err != nil {
		c.logger.Debug("decrypted value is not valid JSON", slog.Any("error", fmt.Errorf("%w: %w", ErrParse, err)))
		return fallback
	}
	return v
}
