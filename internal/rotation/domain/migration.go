// Package domain defines the record migration domain entities.
//
// A migration re-encrypts one record from an old key version to the current
// one. Progress is persisted per record in a staging table, never in process
// memory: a crash mid-run loses at most the uncommitted stage work, which the
// next run redoes because the record is still at the old version.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MigrationStatus represents the per-record migration state machine:
// pending → staged → verified → committed, with failed reachable from any
// state. Committed and failed are terminal.
type MigrationStatus string

const (
	MigrationStatusPending   MigrationStatus = "pending"
	MigrationStatusStaged    MigrationStatus = "staged"
	MigrationStatusVerified  MigrationStatus = "verified"
	MigrationStatusCommitted MigrationStatus = "committed"
	MigrationStatusFailed    MigrationStatus = "failed"
)

// RecordMigration tracks one record's re-encryption to a new key version.
//
// The staged fields hold the complete re-encrypted representation. The live
// record is untouched until commit, which swaps every encryption field in one
// guarded UPDATE.
type RecordMigration struct {
	ID          uuid.UUID
	ProfileID   uuid.UUID
	FromVersion uint
	ToVersion   uint
	Status      MigrationStatus

	StagedWrappedKey []byte
	StagedNonce      []byte
	StagedCiphertext []byte
	StagedBlindIndex []byte

	// LeaseExpiresAt bounds worker ownership. An expired lease makes the
	// record claimable again, so a crashed worker cannot strand it.
	LeaseExpiresAt time.Time

	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fail moves the migration to the terminal failed state with a reason.
func (m *RecordMigration) Fail(reason string) {
	m.Status = MigrationStatusFailed
	m.LastError = &reason
}
