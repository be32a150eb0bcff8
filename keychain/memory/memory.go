// Package memory provides a thread-safe in-memory keychain.Keychain.
package memory

import (
	"context"
	"sync"

	"github.com/jmcleod/healthseal/keychain"
)

type item struct {
	value           string
	requireUnlocked bool
}

// Keychain is an in-memory keychain.Keychain. It starts unlocked.
// Suitable for testing, demos, and single-process use cases.
type Keychain struct {
	mu     sync.RWMutex
	items  map[string]item
	locked bool
}

var _ keychain.Keychain = (*Keychain)(nil)

// New creates a new empty, unlocked Keychain.
func New() *Keychain {
	return &Keychain{items: make(map[string]item)}
}

// Lock makes items stored with WithRequireUnlocked unreadable until Unlock.
func (k *Keychain) Lock() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.locked = true
}

func (k *Keychain) Unlock() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.locked = false
}

func (k *Keychain) Get(ctx context.Context, alias string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	it, ok := k.items[alias]
	if !ok {
		return "", false, nil
	}
	if it.requireUnlocked && k.locked {
		return "", false, keychain.ErrLocked
	}
	return it.value, true, nil
}

func (k *Keychain) Set(ctx context.Context, alias, value string, opts ...keychain.SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := keychain.ResolveSetOptions(opts...)
	k.mu.Lock()
	defer k.mu.Unlock()
	if o.RequireUnlocked && k.locked {
		return keychain.ErrLocked
	}
	k.items[alias] = item{value: value, requireUnlocked: o.RequireUnlocked}
	return nil
}

func (k *Keychain) Delete(ctx context.Context, alias string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.items, alias)
	return nil
}
