package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyStorage wraps failures of the key provider. Encrypt and Decrypt
	// both return it; it is never swallowed.
	ErrKeyStorage = errors.New("key storage failure")

	// ErrEncryption indicates the random source or a primitive failed while
	// sealing. No envelope is returned alongside it.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption is the parent of every reason an envelope is rejected.
	// Decrypt reports these as an empty result; Open returns them.
	ErrDecryption = errors.New("decryption failed")

	// ErrParse indicates decrypted text was not valid JSON for the target type.
	ErrParse = errors.New("parsing decrypted value failed")
)

var (
	ErrMalformedEnvelope = fmt.Errorf("%w: malformed envelope", ErrDecryption)
	ErrEnvelopeTooShort  = fmt.Errorf("%w: envelope too short", ErrDecryption)
	ErrTagMismatch       = fmt.Errorf("%w: authentication tag mismatch", ErrDecryption)
	ErrInvalidUTF8       = fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryption)
	ErrUnsupportedScheme = fmt.Errorf("%w: unsupported envelope scheme", ErrDecryption)
)
