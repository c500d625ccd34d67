package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"
)

// MasterKey represents a root key used to encrypt key pair private keys at rest.
//
// Master keys never touch record data: they only protect the stored RSA
// private key material. They are loaded from the environment in development
// and from a KMS in production, and are never persisted by this service.
type MasterKey struct {
	ID  string
	Key []byte
}

// KMSKeeper is the subset of gocloud.dev/secrets.Keeper the domain needs to
// decrypt KMS-wrapped master keys.
type KMSKeeper interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// MasterKeyChain manages a collection of master keys with one designated as active.
//
// The active key encrypts newly stored private keys; older keys remain in the
// chain so private keys encrypted before a master key rotation can still be
// opened. Reads are lock-free via sync.Map.
type MasterKeyChain struct {
	activeID string
	keys     sync.Map
}

// ActiveMasterKeyID returns the ID of the currently active master key.
func (m *MasterKeyChain) ActiveMasterKeyID() string {
	return m.activeID
}

// Get retrieves a master key from the chain by its ID.
func (m *MasterKeyChain) Get(id string) (*MasterKey, bool) {
	if masterKey, ok := m.keys.Load(id); ok {
		return masterKey.(*MasterKey), ok
	}

	return nil, false
}

// Close securely clears all master keys from memory and resets the chain.
func (m *MasterKeyChain) Close() {
	m.keys.Range(func(key, value any) bool {
		if mk, ok := value.(*MasterKey); ok {
			Zero(mk.Key)
		}
		return true
	})
	m.activeID = ""
	m.keys.Clear()
}

// LoadMasterKeyChain loads master keys from the environment, optionally
// unwrapping each entry through a KMS keeper.
//
// Configuration:
//
//	MASTER_KEYS="id1:base64,id2:base64"  key entries
//	ACTIVE_MASTER_KEY_ID="id2"           key used for new encryptions
//
// Without a keeper, each base64 value must decode to exactly 32 bytes of raw
// key material. With a keeper, each value is a KMS ciphertext that must
// decrypt to 32 bytes. Intermediate plaintext buffers are zeroed once the
// key is stored in the chain.
func LoadMasterKeyChain(ctx context.Context, keeper KMSKeeper) (*MasterKeyChain, error) {
	raw := os.Getenv("MASTER_KEYS")
	if raw == "" {
		return nil, ErrMasterKeysNotSet
	}

	active := os.Getenv("ACTIVE_MASTER_KEY_ID")
	if active == "" {
		return nil, ErrActiveMasterKeyIDNotSet
	}

	mkc := &MasterKeyChain{activeID: active}

	for part := range strings.SplitSeq(raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 {
			mkc.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidMasterKeysFormat, part)
		}
		id := p[0]
		key, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			mkc.Close()
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidMasterKeyBase64, id, err)
		}

		if keeper != nil {
			plaintext, err := keeper.Decrypt(ctx, key)
			if err != nil {
				mkc.Close()
				return nil, fmt.Errorf("failed to decrypt master key %s via KMS: %w", id, err)
			}
			key = plaintext
		}

		if len(key) != KeySize {
			Zero(key)
			mkc.Close()
			return nil, fmt.Errorf(
				"%w: master key %s must be %d bytes, got %d",
				ErrInvalidKeySize,
				id,
				KeySize,
				len(key),
			)
		}

		stored := make([]byte, KeySize)
		copy(stored, key)
		mkc.keys.Store(id, &MasterKey{ID: id, Key: stored})
		Zero(key)
	}

	if _, ok := mkc.Get(active); !ok {
		mkc.Close()
		return nil, fmt.Errorf("%w: ACTIVE_MASTER_KEY_ID=%s", ErrActiveMasterKeyNotFound, active)
	}

	return mkc, nil
}
