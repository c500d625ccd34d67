// Package domain defines the key registry domain models.
//
// The registry holds versioned RSA key pairs. Exactly one version is current
// (used to wrap keys in new envelopes and new at-rest records); older
// versions stay retired-but-active for decryption until they are revoked, and
// a version can only be destroyed once no stored record references it.
package domain

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
)

// KeyState represents the lifecycle state of a key pair version.
type KeyState string

const (
	// StateCurrent marks the single version used for new encryptions.
	StateCurrent KeyState = "current"
	// StateRetired marks a version that only decrypts existing data.
	StateRetired KeyState = "retired"
	// StateRevoked marks a version excluded from decryption fallback.
	StateRevoked KeyState = "revoked"
)

// Blind-index key derivation parameter. Must match the value browsers and
// earlier deployments derived with, or existing indexes become unsearchable.
const indexKeyInfo = "profile-idx"

// KeyPair represents one versioned RSA key pair in the registry.
//
// The private key is stored encrypted with a master key and is only populated
// in memory after the registry unwraps it at load time. It must never be
// serialized to clients or logs.
type KeyPair struct {
	Version             uint                   // Monotonically increasing, never reused
	State               KeyState               // current, retired or revoked
	PublicKeyDER        []byte                 // SPKI-encoded public key
	EncryptedPrivateKey []byte                 // PKCS#8 DER encrypted with a master key
	PrivateKeyNonce     []byte                 // Nonce used to encrypt the private key
	MasterKeyID         string                 // Master key that encrypted the private key
	Algorithm           cryptoDomain.Algorithm // AEAD used for the private key at rest
	PrivateKey          *rsa.PrivateKey        `json:"-"` // Populated after unwrap, never persisted
	IndexKey            []byte                 `json:"-"` // HKDF-derived blind index key, never persisted
	CreatedAt           time.Time
	RetiredAt           *time.Time
}

// PublicKey parses the stored SPKI bytes into an RSA public key.
func (kp *KeyPair) PublicKey() (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(kp.PublicKeyDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key for version %d: %w", kp.Version, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key version %d is not an RSA public key", kp.Version)
	}
	return rsaPub, nil
}

// DistributionString renders the public key in the client distribution format:
// "v<N>:<base64 of PEM-encoded SPKI public key>". Clients parse the version
// prefix, strip the PEM armor and import the SPKI body.
func (kp *KeyPair) DistributionString() string {
	block := pem.Block{Type: "PUBLIC KEY", Bytes: kp.PublicKeyDER}
	encoded := base64.StdEncoding.EncodeToString(pem.EncodeToMemory(&block))
	return fmt.Sprintf("v%d:%s", kp.Version, encoded)
}

// DeriveIndexKey derives the 32-byte blind-index key bound to this key pair.
//
// The key is derived with HKDF-SHA256 over the PKCS#8 DER encoding of the
// private key, so it can only be recomputed by a holder of the private key
// and changes on every rotation.
func (kp *KeyPair) DeriveIndexKey() ([]byte, error) {
	if kp.PrivateKey == nil {
		return nil, ErrPrivateKeyNotLoaded
	}

	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key for version %d: %w", kp.Version, err)
	}
	defer cryptoDomain.Zero(der)

	indexKey := make([]byte, cryptoDomain.KeySize)
	kdf := hkdf.New(sha256.New, der, nil, []byte(indexKeyInfo))
	if _, err := io.ReadFull(kdf, indexKey); err != nil {
		return nil, fmt.Errorf("failed to derive index key for version %d: %w", kp.Version, err)
	}

	return indexKey, nil
}

// Keyring provides lock-free concurrent access to the loaded key pairs.
//
// The current version is an atomically swapped value, not a bare global:
// many readers call Current and Get on every request while rotation swaps
// the pointer rarely.
type Keyring struct {
	current atomic.Uint64
	keys    sync.Map
}

// NewKeyring builds a Keyring from key pairs ordered by version descending.
// The pair with StateCurrent becomes the current version.
func NewKeyring(pairs []*KeyPair) (*Keyring, error) {
	kr := &Keyring{}
	for _, kp := range pairs {
		kr.keys.Store(kp.Version, kp)
		if kp.State == StateCurrent {
			kr.current.Store(uint64(kp.Version))
		}
	}
	if kr.current.Load() == 0 {
		return nil, ErrNoCurrentKey
	}
	return kr, nil
}

// CurrentVersion returns the current key pair version.
func (k *Keyring) CurrentVersion() uint {
	return uint(k.current.Load())
}

// Current returns the current key pair.
func (k *Keyring) Current() (*KeyPair, bool) {
	return k.Get(k.CurrentVersion())
}

// Get retrieves a key pair by version.
func (k *Keyring) Get(version uint) (*KeyPair, bool) {
	if kp, ok := k.keys.Load(version); ok {
		return kp.(*KeyPair), true
	}
	return nil, false
}

// ActiveVersionsDesc returns every version usable for decryption (current and
// retired, never revoked) in descending order. The slice is rebuilt per call;
// the set is small and operator-controlled.
func (k *Keyring) ActiveVersionsDesc() []uint {
	var versions []uint
	k.keys.Range(func(_, value any) bool {
		kp := value.(*KeyPair)
		if kp.State == StateCurrent || kp.State == StateRetired {
			versions = append(versions, kp.Version)
		}
		return true
	})

	// Insertion sort, descending. The registry holds a handful of versions.
	for i := 1; i < len(versions); i++ {
		for j := i; j > 0 && versions[j] > versions[j-1]; j-- {
			versions[j], versions[j-1] = versions[j-1], versions[j]
		}
	}
	return versions
}

// Close clears derived key material from the ring.
func (k *Keyring) Close() {
	k.keys.Range(func(key, value any) bool {
		if kp, ok := value.(*KeyPair); ok {
			cryptoDomain.Zero(kp.IndexKey)
			kp.PrivateKey = nil
		}
		return true
	})
	k.current.Store(0)
	k.keys.Clear()
}
