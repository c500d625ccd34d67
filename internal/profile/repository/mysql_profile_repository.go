package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/pii-vault/internal/database"
	apperrors "github.com/allisson/pii-vault/internal/errors"
	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
)

// MySQLProfileRepository implements profile persistence for MySQL.
// Uses BLOB columns for ciphertext material and DATETIME(6) timestamps.
type MySQLProfileRepository struct {
	db *sql.DB
}

// NewMySQLProfileRepository creates a new MySQL profile repository.
func NewMySQLProfileRepository(db *sql.DB) *MySQLProfileRepository {
	return &MySQLProfileRepository{db: db}
}

// Create inserts a new encrypted profile record.
func (m *MySQLProfileRepository) Create(ctx context.Context, profile *profileDomain.Profile) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO profiles (id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		profile.ID,
		profile.KeyVersion,
		profile.WrappedKey,
		profile.Nonce,
		profile.Ciphertext,
		profile.BlindIndex,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create profile")
	}
	return nil
}

// GetByID retrieves one profile by its identifier.
func (m *MySQLProfileRepository) GetByID(
	ctx context.Context, id uuid.UUID,
) (*profileDomain.Profile, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at
			  FROM profiles WHERE id = ?`

	profile := &profileDomain.Profile{}
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.KeyVersion,
		&profile.WrappedKey,
		&profile.Nonce,
		&profile.Ciphertext,
		&profile.BlindIndex,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, profileDomain.ErrProfileNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get profile")
	}
	return profile, nil
}

// FindByBlindIndex retrieves all profiles whose blind index matches the token.
// Collisions are possible, the result is a candidate set.
func (m *MySQLProfileRepository) FindByBlindIndex(
	ctx context.Context, blindIndex []byte,
) ([]*profileDomain.Profile, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at
			  FROM profiles WHERE blind_index = ?`

	rows, err := querier.QueryContext(ctx, query, blindIndex)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find profiles by blind index")
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// ListByKeyVersion retrieves a batch of profiles still encrypted under the
// given key version, ordered by id for stable pagination.
func (m *MySQLProfileRepository) ListByKeyVersion(
	ctx context.Context, version uint, limit int,
) ([]*profileDomain.Profile, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at
			  FROM profiles WHERE key_version = ? ORDER BY id LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, version, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list profiles by key version")
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// CountByKeyVersion reports how many profiles reference a key version.
func (m *MySQLProfileRepository) CountByKeyVersion(
	ctx context.Context, version uint,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	err := querier.QueryRowContext(
		ctx, `SELECT COUNT(*) FROM profiles WHERE key_version = ?`, version,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count profiles by key version")
	}
	return count, nil
}

// UpdateEncryption atomically replaces the encryption fields of a profile,
// guarded by the expected key version. Returns the number of rows updated.
func (m *MySQLProfileRepository) UpdateEncryption(
	ctx context.Context,
	profile *profileDomain.Profile,
	expectedVersion uint,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE profiles
			  SET key_version = ?, wrapped_key = ?, nonce = ?, ciphertext = ?, blind_index = ?, updated_at = ?
			  WHERE id = ? AND key_version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		profile.KeyVersion,
		profile.WrappedKey,
		profile.Nonce,
		profile.Ciphertext,
		profile.BlindIndex,
		profile.UpdatedAt,
		profile.ID,
		expectedVersion,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to update profile encryption")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to check update result")
	}
	return affected, nil
}
