package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marksync/internal/cryptox"
)

// ErrWrongPassphrase means the passphrase does not match the one the
// store was first unlocked with.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// Keys installs the field encryption key derived from a passphrase.
//
// The salt and a verifier of the derived key live in the metadata table.
// The first Unlock creates both; later calls must reproduce the verifier.
type Keys struct {
	meta   metadata.Repository
	cipher *cryptox.FieldCipher
}

func NewKeys(meta metadata.Repository, c *cryptox.FieldCipher) *Keys {
	return &Keys{meta: meta, cipher: c}
}

// Configured reports whether a passphrase was ever set for this store.
func (k *Keys) Configured(ctx context.Context) (bool, error) {
	v, err := k.meta.Get(ctx, metadata.KeyEncryptionCheck)
	if err != nil {
		return false, err
	}
	return len(v) > 0, nil
}

// Unlock derives the key and hands it to the cipher.
func (k *Keys) Unlock(ctx context.Context, passphrase []byte) error {
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: empty passphrase", ErrWrongPassphrase)
	}

	salt, err := k.meta.Get(ctx, metadata.KeyEncryptionSalt)
	if err != nil {
		return fmt.Errorf("load salt: %w", err)
	}
	if len(salt) == 0 {
		if salt, err = cryptox.NewSalt(); err != nil {
			return fmt.Errorf("new salt: %w", err)
		}
		if err := k.meta.Set(ctx, metadata.KeyEncryptionSalt, salt); err != nil {
			return fmt.Errorf("save salt: %w", err)
		}
	}

	key := cryptox.DeriveKey(passphrase, salt)
	verifier := cryptox.MakeVerifier(key)

	saved, err := k.meta.Get(ctx, metadata.KeyEncryptionCheck)
	if err != nil {
		return fmt.Errorf("load verifier: %w", err)
	}
	if len(saved) == 0 {
		if err := k.meta.Set(ctx, metadata.KeyEncryptionCheck, verifier); err != nil {
			return fmt.Errorf("save verifier: %w", err)
		}
	} else if subtle.ConstantTimeCompare(saved, verifier) == 0 {
		return ErrWrongPassphrase
	}

	return k.cipher.SetKey(key)
}

// Lock drops the key from memory.
func (k *Keys) Lock() {
	k.cipher.ClearKey()
}

// Forget removes the salt and verifier so a new passphrase can be set.
// Data encrypted under the old key stays unreadable.
func (k *Keys) Forget(ctx context.Context) error {
	k.Lock()
	if err := k.meta.Delete(ctx, metadata.KeyEncryptionCheck); err != nil {
		return err
	}
	return k.meta.Delete(ctx, metadata.KeyEncryptionSalt)
}
