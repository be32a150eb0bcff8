// Package keychain defines the secure key storage contract used by the key
// store. Implementations are expected to be access controlled by whatever
// platform they run on; this package does not add that guarantee.
package keychain

import (
	"context"
	"errors"
)

var (
	// ErrLocked is returned when an item that requires an unlocked keychain
	// is read or written while the keychain is locked.
	ErrLocked = errors.New("keychain locked")
	// ErrBadPassphrase is returned by Unlock when the passphrase does not
	// match the one the keychain was initialised with.
	ErrBadPassphrase = errors.New("keychain passphrase mismatch")
)

// Keychain stores small secret strings under an alias.
type Keychain interface {
	// Get returns the value stored under alias. found is false when the
	// alias does not exist; that is not an error.
	Get(ctx context.Context, alias string) (value string, found bool, err error)
	// Set stores value under alias, replacing any previous value.
	Set(ctx context.Context, alias, value string, opts ...SetOption) error
	// Delete removes alias. Deleting a missing alias succeeds.
	Delete(ctx context.Context, alias string) error
}

// SetOption configures how an item is stored.
type SetOption func(*SetOptions)

// SetOptions is the resolved form of a list of SetOption.
type SetOptions struct {
	RequireUnlocked bool
}

// WithRequireUnlocked restricts the item to be readable only while the
// keychain is unlocked.
func WithRequireUnlocked() SetOption {
	return func(o *SetOptions) {
		o.RequireUnlocked = true
	}
}

// ResolveSetOptions applies opts in order.
func ResolveSetOptions(opts ...SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
