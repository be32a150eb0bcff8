package crypto

import (
	"crypto/sha256"
	"strconv"
)

// DeriveKeyStream expands secret and nonceHex into length pseudorandom bytes.
// Block i is SHA-256 over the text secret || nonceHex || decimal(i); blocks
// are concatenated and the result truncated to length. The output depends
// only on its inputs.
func DeriveKeyStream(secret, nonceHex string, length int) []byte {
	if length <= 0 {
		return []byte{}
	}
	stream := make([]byte, 0, length+sha256.Size)
	prefix := secret + nonceHex
	for counter := 0; len(stream) < length; counter++ {
		block := sha256.Sum256([]byte(prefix + strconv.Itoa(counter)))
		stream = append(stream, block[:]...)
	}
	return stream[:length]
}
