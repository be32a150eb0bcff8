package key

import "errors"

// ErrKeyStorage indicates the keychain could not provide or persist the data
// key. It is fatal to both encryption and decryption.
var ErrKeyStorage = errors.New("key storage failure")
