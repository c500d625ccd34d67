// Package repository implements encrypted profile persistence for PostgreSQL
// and MySQL.
//
// Only ciphertext, wrapped keys and blind-index tokens reach the database.
// The blind_index column is indexed but not unique: distinct plaintexts can
// share a token, so callers must decrypt-and-compare the candidate set.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/pii-vault/internal/database"
	apperrors "github.com/allisson/pii-vault/internal/errors"
	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
)

// PostgreSQLProfileRepository implements profile persistence for PostgreSQL.
type PostgreSQLProfileRepository struct {
	db *sql.DB
}

// NewPostgreSQLProfileRepository creates a new PostgreSQL profile repository.
func NewPostgreSQLProfileRepository(db *sql.DB) *PostgreSQLProfileRepository {
	return &PostgreSQLProfileRepository{db: db}
}

// Create inserts a new encrypted profile record.
func (p *PostgreSQLProfileRepository) Create(ctx context.Context, profile *profileDomain.Profile) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO profiles (id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

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
func (p *PostgreSQLProfileRepository) GetByID(
	ctx context.Context, id uuid.UUID,
) (*profileDomain.Profile, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at
			  FROM profiles WHERE id = $1`

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
func (p *PostgreSQLProfileRepository) FindByBlindIndex(
	ctx context.Context, blindIndex []byte,
) ([]*profileDomain.Profile, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at
			  FROM profiles WHERE blind_index = $1`

	rows, err := querier.QueryContext(ctx, query, blindIndex)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find profiles by blind index")
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// ListByKeyVersion retrieves a batch of profiles still encrypted under the
// given key version, ordered by id for stable pagination.
func (p *PostgreSQLProfileRepository) ListByKeyVersion(
	ctx context.Context, version uint, limit int,
) ([]*profileDomain.Profile, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, key_version, wrapped_key, nonce, ciphertext, blind_index, created_at, updated_at
			  FROM profiles WHERE key_version = $1 ORDER BY id LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, version, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list profiles by key version")
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// CountByKeyVersion reports how many profiles reference a key version.
func (p *PostgreSQLProfileRepository) CountByKeyVersion(
	ctx context.Context, version uint,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	err := querier.QueryRowContext(
		ctx, `SELECT COUNT(*) FROM profiles WHERE key_version = $1`, version,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count profiles by key version")
	}
	return count, nil
}

// UpdateEncryption atomically replaces the encryption fields of a profile,
// guarded by the expected key version. Returns the number of rows updated:
// zero means another writer already migrated or modified the record, and the
// caller must not retry blindly.
func (p *PostgreSQLProfileRepository) UpdateEncryption(
	ctx context.Context,
	profile *profileDomain.Profile,
	expectedVersion uint,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE profiles
			  SET key_version = $1, wrapped_key = $2, nonce = $3, ciphertext = $4, blind_index = $5, updated_at = $6
			  WHERE id = $7 AND key_version = $8`

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

// scanProfiles drains a result set into profile records.
func scanProfiles(rows *sql.Rows) ([]*profileDomain.Profile, error) {
	var profiles []*profileDomain.Profile
	for rows.Next() {
		profile := &profileDomain.Profile{}
		if err := rows.Scan(
			&profile.ID,
			&profile.KeyVersion,
			&profile.WrappedKey,
			&profile.Nonce,
			&profile.Ciphertext,
			&profile.BlindIndex,
			&profile.CreatedAt,
			&profile.UpdatedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan profile")
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate profiles")
	}
	return profiles, nil
}
