// Package keeper wraps a keychain.Keychain so that every value is sealed by
// a gocloud.dev/secrets Keeper before it reaches the inner keychain. This
// lets a cloud KMS, HashiCorp Vault, or a local key protect the data key.
package keeper

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"

	"github.com/jmcleod/healthseal/internal/util"
	"github.com/jmcleod/healthseal/keychain"

	// Register the KMS provider drivers usable in OpenKeeper URLs.
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// Keychain seals values with a secrets.Keeper and stores them in an inner keychain.
type Keychain struct {
	inner  keychain.Keychain
	keeper *secrets.Keeper
}

var _ keychain.Keychain = (*Keychain)(nil)

// New wraps inner with k. The Keychain takes ownership of k.
func New(inner keychain.Keychain, k *secrets.Keeper) *Keychain {
	return &Keychain{inner: inner, keeper: k}
}

// Open opens the keeper at keeperURL (gcpkms://, awskms://, azurekeyvault://,
// hashivault://, base64key://) and wraps inner with it.
func Open(ctx context.Context, inner keychain.Keychain, keeperURL string) (*Keychain, error) {
	k, err := secrets.OpenKeeper(ctx, keeperURL)
	if err != nil {
		return nil, fmt.Errorf("opening keeper: %w", err)
	}
	return New(inner, k), nil
}

// Close releases the keeper. It does not close the inner keychain.
func (k *Keychain) Close() error {
	return k.keeper.Close()
}

func (k *Keychain) Get(ctx context.Context, alias string) (string, bool, error) {
	stored, found, err := k.inner.Get(ctx, alias)
	if err != nil || !found {
		return "", found, err
	}
	sealed, err := util.Base64Decode(stored)
	if err != nil {
		return "", false, fmt.Errorf("decoding sealed keychain item: %w", err)
	}
	plain, err := k.keeper.Decrypt(ctx, sealed)
	if err != nil {
		return "", false, fmt.Errorf("unsealing keychain item: %w", err)
	}
	return string(plain), true, nil
}

func (k *Keychain) Set(ctx context.Context, alias, value string, opts ...keychain.SetOption) error {
	sealed, err := k.keeper.Encrypt(ctx, []byte(value))
	if err != nil {
		return fmt.Errorf("sealing keychain item: %w", err)
	}
	return k.inner.Set(ctx, alias, util.Base64Encode(sealed), opts...)
}

func (k *Keychain) Delete(ctx context.Context, alias string) error {
	return k.inner.Delete(ctx, alias)
}
