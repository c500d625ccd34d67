// Package repository implements record migration persistence for PostgreSQL
// and MySQL.
//
// Claiming uses lease expiry plus row locks: a record is claimable while it
// sits at the source key version and no live lease covers it. A failed row
// blocks re-claiming until its lease expires, so one run does not spin on a
// permanently failing record; a later run retries it. Committed records fall
// out through the source-version predicate.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/pii-vault/internal/database"
	apperrors "github.com/allisson/pii-vault/internal/errors"
	rotationDomain "github.com/allisson/pii-vault/internal/rotation/domain"
)

// PostgreSQLMigrationRepository implements migration persistence for PostgreSQL.
type PostgreSQLMigrationRepository struct {
	db *sql.DB
}

// NewPostgreSQLMigrationRepository creates a new PostgreSQL migration repository.
func NewPostgreSQLMigrationRepository(db *sql.DB) *PostgreSQLMigrationRepository {
	return &PostgreSQLMigrationRepository{db: db}
}

// ClaimBatch claims up to limit records still at fromVersion that are not
// under a live lease, and returns fresh pending migration rows for them.
// Must run inside a transaction: the FOR UPDATE SKIP LOCKED lock keeps
// concurrent claimers from sharing a record.
func (p *PostgreSQLMigrationRepository) ClaimBatch(
	ctx context.Context,
	fromVersion, toVersion uint,
	limit int,
	leaseFor time.Duration,
) ([]*rotationDomain.RecordMigration, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT p.id FROM profiles p
			  WHERE p.key_version = $1
			  AND NOT EXISTS (
				  SELECT 1 FROM record_migrations m
				  WHERE m.profile_id = p.id
				  AND m.status IN ('pending', 'staged', 'verified', 'failed')
				  AND m.lease_expires_at > NOW()
			  )
			  ORDER BY p.id
			  LIMIT $2
			  FOR UPDATE OF p SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, fromVersion, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to select claimable records")
	}
	defer rows.Close()

	var profileIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan claimable record")
		}
		profileIDs = append(profileIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate claimable records")
	}

	migrations := make([]*rotationDomain.RecordMigration, 0, len(profileIDs))
	now := time.Now().UTC()
	leaseExpiresAt := now.Add(leaseFor)

	insert := `INSERT INTO record_migrations (id, profile_id, from_version, to_version, status, lease_expires_at, created_at, updated_at)
			   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			   ON CONFLICT (profile_id) DO UPDATE
			   SET id = EXCLUDED.id, from_version = EXCLUDED.from_version, to_version = EXCLUDED.to_version,
				   status = EXCLUDED.status, staged_wrapped_key = NULL, staged_nonce = NULL,
				   staged_ciphertext = NULL, staged_blind_index = NULL, last_error = NULL,
				   lease_expires_at = EXCLUDED.lease_expires_at, updated_at = EXCLUDED.updated_at`

	for _, profileID := range profileIDs {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to generate migration id")
		}

		migration := &rotationDomain.RecordMigration{
			ID:             id,
			ProfileID:      profileID,
			FromVersion:    fromVersion,
			ToVersion:      toVersion,
			Status:         rotationDomain.MigrationStatusPending,
			LeaseExpiresAt: leaseExpiresAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		_, err = querier.ExecContext(ctx, insert, migration.ID, migration.ProfileID,
			migration.FromVersion, migration.ToVersion, migration.Status,
			migration.LeaseExpiresAt, migration.CreatedAt, migration.UpdatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to claim record")
		}

		migrations = append(migrations, migration)
	}

	return migrations, nil
}

// UpdateStage persists the staged encryption fields and the staged status.
func (p *PostgreSQLMigrationRepository) UpdateStage(
	ctx context.Context, migration *rotationDomain.RecordMigration,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE record_migrations
			  SET status = $1, staged_wrapped_key = $2, staged_nonce = $3, staged_ciphertext = $4,
				  staged_blind_index = $5, updated_at = NOW()
			  WHERE id = $6`

	_, err := querier.ExecContext(ctx, query, migration.Status, migration.StagedWrappedKey,
		migration.StagedNonce, migration.StagedCiphertext, migration.StagedBlindIndex, migration.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update migration stage")
	}
	return nil
}

// UpdateStatus persists a status transition (verified, committed, failed).
func (p *PostgreSQLMigrationRepository) UpdateStatus(
	ctx context.Context, migration *rotationDomain.RecordMigration,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE record_migrations
			  SET status = $1, last_error = $2, updated_at = NOW()
			  WHERE id = $3`

	_, err := querier.ExecContext(ctx, query, migration.Status, migration.LastError, migration.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update migration status")
	}
	return nil
}

// GetByProfileID retrieves the migration row for a profile, if any.
func (p *PostgreSQLMigrationRepository) GetByProfileID(
	ctx context.Context, profileID uuid.UUID,
) (*rotationDomain.RecordMigration, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, profile_id, from_version, to_version, status, staged_wrapped_key, staged_nonce,
				  staged_ciphertext, staged_blind_index, lease_expires_at, last_error, created_at, updated_at
			  FROM record_migrations WHERE profile_id = $1`

	migration := &rotationDomain.RecordMigration{}
	err := querier.QueryRowContext(ctx, query, profileID).Scan(
		&migration.ID,
		&migration.ProfileID,
		&migration.FromVersion,
		&migration.ToVersion,
		&migration.Status,
		&migration.StagedWrappedKey,
		&migration.StagedNonce,
		&migration.StagedCiphertext,
		&migration.StagedBlindIndex,
		&migration.LeaseExpiresAt,
		&migration.LastError,
		&migration.CreatedAt,
		&migration.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "migration not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get migration")
	}
	return migration, nil
}
