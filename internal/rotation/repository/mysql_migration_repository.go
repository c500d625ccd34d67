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

// MySQLMigrationRepository implements migration persistence for MySQL.
type MySQLMigrationRepository struct {
	db *sql.DB
}

// NewMySQLMigrationRepository creates a new MySQL migration repository.
func NewMySQLMigrationRepository(db *sql.DB) *MySQLMigrationRepository {
	return &MySQLMigrationRepository{db: db}
}

// ClaimBatch claims up to limit records still at fromVersion that are not
// under a live lease, and returns fresh pending migration rows for them.
// Must run inside a transaction.
func (m *MySQLMigrationRepository) ClaimBatch(
	ctx context.Context,
	fromVersion, toVersion uint,
	limit int,
	leaseFor time.Duration,
) ([]*rotationDomain.RecordMigration, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT p.id FROM profiles p
			  WHERE p.key_version = ?
			  AND NOT EXISTS (
				  SELECT 1 FROM record_migrations rm
				  WHERE rm.profile_id = p.id
				  AND rm.status IN ('pending', 'staged', 'verified', 'failed')
				  AND rm.lease_expires_at > NOW()
			  )
			  ORDER BY p.id
			  LIMIT ?
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
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			   ON DUPLICATE KEY UPDATE
			   id = VALUES(id), from_version = VALUES(from_version), to_version = VALUES(to_version),
			   status = VALUES(status), staged_wrapped_key = NULL, staged_nonce = NULL,
			   staged_ciphertext = NULL, staged_blind_index = NULL, last_error = NULL,
			   lease_expires_at = VALUES(lease_expires_at), updated_at = VALUES(updated_at)`

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
func (m *MySQLMigrationRepository) UpdateStage(
	ctx context.Context, migration *rotationDomain.RecordMigration,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE record_migrations
			  SET status = ?, staged_wrapped_key = ?, staged_nonce = ?, staged_ciphertext = ?,
				  staged_blind_index = ?, updated_at = NOW()
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, migration.Status, migration.StagedWrappedKey,
		migration.StagedNonce, migration.StagedCiphertext, migration.StagedBlindIndex, migration.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update migration stage")
	}
	return nil
}

// UpdateStatus persists a status transition (verified, committed, failed).
func (m *MySQLMigrationRepository) UpdateStatus(
	ctx context.Context, migration *rotationDomain.RecordMigration,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE record_migrations
			  SET status = ?, last_error = ?, updated_at = NOW()
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, migration.Status, migration.LastError, migration.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update migration status")
	}
	return nil
}

// GetByProfileID retrieves the migration row for a profile, if any.
func (m *MySQLMigrationRepository) GetByProfileID(
	ctx context.Context, profileID uuid.UUID,
) (*rotationDomain.RecordMigration, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, profile_id, from_version, to_version, status, staged_wrapped_key, staged_nonce,
				  staged_ciphertext, staged_blind_index, lease_expires_at, last_error, created_at, updated_at
			  FROM record_migrations WHERE profile_id = ?`

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
