// Package usecase implements the key registry business logic.
//
// The registry is the server-side authority for "which private key decrypts
// version vN". It coordinates key pair generation, the atomic current-version
// swap on rotation, and the guarded destruction of retired versions.
package usecase

import (
	"context"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
)

// KeyPairRepository defines the interface for key pair persistence.
//
// Implementations must return key pairs from List ordered by version
// descending (newest first) and be safe for concurrent use. All methods
// participate in a transaction when the context carries one.
type KeyPairRepository interface {
	// Create stores a new key pair version.
	Create(ctx context.Context, kp *keyringDomain.KeyPair) error

	// Update modifies the state and retirement timestamp of an existing version.
	Update(ctx context.Context, kp *keyringDomain.KeyPair) error

	// GetByVersion retrieves one key pair. Returns keyringDomain.ErrKeyNotFound
	// if the version does not exist.
	GetByVersion(ctx context.Context, version uint) (*keyringDomain.KeyPair, error)

	// List retrieves all key pairs ordered by version descending.
	List(ctx context.Context) ([]*keyringDomain.KeyPair, error)

	// Delete removes a key pair row. The use case layer enforces the
	// zero-references guard before calling this.
	Delete(ctx context.Context, version uint) error
}

// RecordCounter reports how many stored records still reference a key version.
// Implemented by the profile repository; used to guard Destroy.
type RecordCounter interface {
	CountByKeyVersion(ctx context.Context, version uint) (int64, error)
}

// CacheInvalidator drops resolver cache state when a key version disappears.
// Implemented by the decryption resolver.
type CacheInvalidator interface {
	Flush()
}

// KeyringUseCase defines the key registry operations.
type KeyringUseCase interface {
	// Load decrypts all non-revoked key pairs with the master key chain and
	// assembles them into an in-memory Keyring. Called at startup.
	Load(ctx context.Context, masterKeyChain *cryptoDomain.MasterKeyChain) (*keyringDomain.Keyring, error)

	// RegisterNewVersion generates a fresh RSA key pair, persists it as the
	// current version and retires the previous current version in the same
	// transaction, so there is never a window without a current key.
	// Returns the new version number.
	RegisterNewVersion(
		ctx context.Context,
		masterKeyChain *cryptoDomain.MasterKeyChain,
		bits int,
	) (uint, error)

	// Retire marks a retired version as revoked, removing it from the
	// decryption fallback set. The current version cannot be retired.
	Retire(ctx context.Context, version uint) error

	// Destroy permanently deletes a key pair. Refused with ErrKeyInUse while
	// any stored record references the version, because ciphertext under a
	// destroyed key is irrecoverable.
	Destroy(ctx context.Context, version uint) error
}
