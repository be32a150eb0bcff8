// Package bbolt provides a file-backed keychain.Keychain on a BBolt database.
//
// Items stored with keychain.WithRequireUnlocked are sealed with AES-256-GCM
// under a key derived from the keychain passphrase with Argon2id. The derived
// key is held in a memguard Enclave while the keychain is unlocked.
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/healthseal/internal/util"
	"github.com/jmcleod/healthseal/keychain"
)

// KDFParams configures the Argon2id derivation of the unlock key.
type KDFParams = util.Argon2idParams

var (
	metaBucket  = []byte("__keychain_meta")
	itemsBucket = []byte("__keychain_items")

	saltKey     = []byte("salt")
	kdfKey      = []byte("kdf")
	verifierKey = []byte("verifier")
)

const (
	saltLen           = 16
	verifierPlaintext = "healthseal:keychain:v1"
)

type record struct {
	RequireUnlocked bool   `json:"require_unlocked"`
	Value           []byte `json:"value"`
}

// Keychain implements keychain.Keychain backed by a BBolt database.
// It starts locked.
type Keychain struct {
	db     *bbolt.DB
	params KDFParams

	mu        sync.RWMutex
	unlockKey *memguard.Enclave
}

var _ keychain.Keychain = (*Keychain)(nil)

// Option configures a Keychain.
type Option func(*Keychain)

// WithKDFParams sets the Argon2id parameters used the first time the
// keychain is unlocked. Later unlocks reuse the persisted parameters.
func WithKDFParams(params KDFParams) Option {
	return func(k *Keychain) {
		k.params = params
	}
}

// New returns a Keychain stored in db.
func New(db *bbolt.DB, opts ...Option) (*Keychain, error) {
	k := &Keychain{db: db, params: util.DefaultArgon2idParams()}
	for _, opt := range opts {
		opt(k)
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(itemsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("initialising keychain buckets: %w", err)
	}
	return k, nil
}

// NewFromFile opens a BBolt database at the given path and returns a new Keychain.
func NewFromFile(path string, opts ...Option) (*Keychain, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	k, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return k, nil
}

// Close locks the keychain and closes the underlying database.
func (k *Keychain) Close() error {
	k.Lock()
	return k.db.Close()
}

// Unlock derives the unlock key from passphrase. The first successful call
// on a fresh keychain fixes the passphrase; later calls with a different
// passphrase fail with keychain.ErrBadPassphrase.
func (k *Keychain) Unlock(passphrase string) error {
	var (
		salt     []byte
		params   KDFParams
		verifier []byte
	)
	err := k.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		salt = util.CopyBytes(b.Get(saltKey))
		verifier = util.CopyBytes(b.Get(verifierKey))
		if raw := b.Get(kdfKey); raw != nil {
			return json.Unmarshal(raw, &params)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading keychain metadata: %w", err)
	}

	if len(salt) == 0 {
		return k.initialise(passphrase)
	}

	key, err := util.DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)
	if _, err := util.DecryptAESWithAAD(verifier, key, verifierKey); err != nil {
		return keychain.ErrBadPassphrase
	}

	k.mu.Lock()
	k.unlockKey = memguard.NewEnclave(util.CopyBytes(key))
	k.mu.Unlock()
	return nil
}

func (k *Keychain) initialise(passphrase string) error {
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return err
	}
	key, err := util.DeriveArgon2idKey(passphrase, salt, k.params)
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)
	verifier, err := util.EncryptAESWithAAD([]byte(verifierPlaintext), key, verifierKey)
	if err != nil {
		return err
	}
	rawParams, err := json.Marshal(k.params)
	if err != nil {
		return err
	}

	err = k.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b.Get(saltKey) != nil {
			return errors.New("keychain initialised concurrently")
		}
		if err := b.Put(saltKey, salt); err != nil {
			return err
		}
		if err := b.Put(kdfKey, rawParams); err != nil {
			return err
		}
		return b.Put(verifierKey, verifier)
	})
	if err != nil {
		return fmt.Errorf("initialising keychain: %w", err)
	}

	k.mu.Lock()
	k.unlockKey = memguard.NewEnclave(util.CopyBytes(key))
	k.mu.Unlock()
	return nil
}

// Lock forgets the unlock key.
func (k *Keychain) Lock() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.unlockKey = nil
}

// Locked reports whether protected items are currently unreadable.
func (k *Keychain) Locked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.unlockKey == nil
}

func (k *Keychain) withUnlockKey(fn func(key []byte) error) error {
	k.mu.RLock()
	enclave := k.unlockKey
	k.mu.RUnlock()
	if enclave == nil {
		return keychain.ErrLocked
	}
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening unlock key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (k *Keychain) Get(ctx context.Context, alias string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var rec record
	var found bool
	err := k.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(itemsBucket).Get([]byte(alias))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", false, fmt.Errorf("reading keychain item: %w", err)
	}
	if !found {
		return "", false, nil
	}
	if !rec.RequireUnlocked {
		return string(rec.Value), true, nil
	}

	var value string
	err = k.withUnlockKey(func(key []byte) error {
		plain, err := util.DecryptAESWithAAD(rec.Value, key, []byte(alias))
		if err != nil {
			return fmt.Errorf("unsealing keychain item: %w", err)
		}
		value = string(plain)
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (k *Keychain) Set(ctx context.Context, alias, value string, opts ...keychain.SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := keychain.ResolveSetOptions(opts...)
	rec := record{RequireUnlocked: o.RequireUnlocked, Value: []byte(value)}
	if o.RequireUnlocked {
		err := k.withUnlockKey(func(key []byte) error {
			sealed, err := util.EncryptAESWithAAD([]byte(value), key, []byte(alias))
			if err != nil {
				return fmt.Errorf("sealing keychain item: %w", err)
			}
			rec.Value = sealed
			return nil
		})
		if err != nil {
			return err
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return k.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(itemsBucket).Put([]byte(alias), data)
	})
}

func (k *Keychain) Delete(ctx context.Context, alias string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(itemsBucket).Delete([]byte(alias))
	})
}
