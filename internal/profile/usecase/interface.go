// Package usecase implements the profile business logic.
//
// Profiles arrive as client-encrypted envelopes, are decrypted server-side
// and immediately re-encrypted at rest under the current key version. The
// plaintext national ID only ever exists in request-scoped memory.
package usecase

import (
	"context"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
)

// ProfileRepository defines the interface for encrypted profile persistence.
type ProfileRepository interface {
	// Create stores a new encrypted profile record.
	Create(ctx context.Context, profile *profileDomain.Profile) error

	// GetByID retrieves one profile. Returns profileDomain.ErrProfileNotFound
	// if the id does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*profileDomain.Profile, error)

	// FindByBlindIndex retrieves the candidate set for a blind index token.
	FindByBlindIndex(ctx context.Context, blindIndex []byte) ([]*profileDomain.Profile, error)

	// ListByKeyVersion retrieves a batch of records at a key version.
	ListByKeyVersion(ctx context.Context, version uint, limit int) ([]*profileDomain.Profile, error)

	// CountByKeyVersion reports how many records reference a key version.
	CountByKeyVersion(ctx context.Context, version uint) (int64, error)

	// UpdateEncryption swaps all encryption fields atomically, guarded by the
	// expected key version. Returns the number of rows updated.
	UpdateEncryption(ctx context.Context, profile *profileDomain.Profile, expectedVersion uint) (int64, error)
}

// RecordResolver decrypts envelopes and stored records against the key
// registry. Implemented by the resolver package.
type RecordResolver interface {
	// ResolveEnvelope decrypts a client envelope; the tagged version is
	// authoritative.
	ResolveEnvelope(ctx context.Context, env *cryptoDomain.Envelope) (map[string]any, uint, error)

	// ResolveRecord decrypts a stored record, probing active key versions.
	ResolveRecord(ctx context.Context, record *profileDomain.Profile) ([]byte, uint, error)
}

// ProfileUseCase defines the profile operations.
type ProfileUseCase interface {
	// PublicKeyDistribution returns the current public key in the client
	// distribution format "v<N>:<base64 PEM>".
	PublicKeyDistribution(ctx context.Context) (string, error)

	// SaveFromEnvelope decrypts a submitted envelope, rejects duplicates and
	// stores the profile re-encrypted under the current key version.
	// Returns the new profile id.
	SaveFromEnvelope(ctx context.Context, envelope []byte) (uuid.UUID, error)

	// ExistsByNationalID reports whether a profile with the national ID exists.
	ExistsByNationalID(ctx context.Context, nationalID string) (bool, error)

	// FindByNationalID retrieves the profile holding the national ID via
	// blind-index lookup and decrypt-compare. Returns ErrProfileNotFound when
	// no candidate matches.
	FindByNationalID(ctx context.Context, nationalID string) (*profileDomain.Profile, error)
}
