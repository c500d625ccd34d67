// Package usecase implements the key rotation record migrator.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
	rotationDomain "github.com/allisson/pii-vault/internal/rotation/domain"
)

// MigrationRepository defines record migration persistence operations.
type MigrationRepository interface {
	// ClaimBatch claims up to limit records at fromVersion not under a live
	// lease and returns pending migration rows. Must run inside a transaction.
	ClaimBatch(
		ctx context.Context,
		fromVersion, toVersion uint,
		limit int,
		leaseFor time.Duration,
	) ([]*rotationDomain.RecordMigration, error)

	// UpdateStage persists staged encryption fields with the staged status.
	UpdateStage(ctx context.Context, migration *rotationDomain.RecordMigration) error

	// UpdateStatus persists a status transition.
	UpdateStatus(ctx context.Context, migration *rotationDomain.RecordMigration) error

	// GetByProfileID retrieves the migration row for a profile.
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (*rotationDomain.RecordMigration, error)
}

// ProfileStore is the slice of profile persistence the migrator needs.
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*profileDomain.Profile, error)
	CountByKeyVersion(ctx context.Context, version uint) (int64, error)
	UpdateEncryption(ctx context.Context, profile *profileDomain.Profile, expectedVersion uint) (int64, error)
}

// RecordDecryptor decrypts stored records; implemented by the resolver.
type RecordDecryptor interface {
	ResolveRecord(ctx context.Context, record *profileDomain.Profile) ([]byte, uint, error)
}
