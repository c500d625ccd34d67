// Package repository implements key pair persistence for PostgreSQL and MySQL.
//
// Both implementations support transaction-aware operations via
// database.GetTx(), which the registry relies on for the atomic
// current-version swap during rotation.
package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/pii-vault/internal/database"
	apperrors "github.com/allisson/pii-vault/internal/errors"
	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
)

// PostgreSQLKeyPairRepository implements key pair persistence for PostgreSQL.
//
// Schema: keypairs(version BIGINT PRIMARY KEY, state TEXT, public_key BYTEA,
// encrypted_private_key BYTEA, private_key_nonce BYTEA, master_key_id TEXT,
// algorithm TEXT, created_at TIMESTAMPTZ, retired_at TIMESTAMPTZ NULL).
type PostgreSQLKeyPairRepository struct {
	db *sql.DB
}

// NewPostgreSQLKeyPairRepository creates a new PostgreSQL key pair repository.
func NewPostgreSQLKeyPairRepository(db *sql.DB) *PostgreSQLKeyPairRepository {
	return &PostgreSQLKeyPairRepository{db: db}
}

// Create inserts a new key pair version.
func (p *PostgreSQLKeyPairRepository) Create(ctx context.Context, kp *keyringDomain.KeyPair) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO keypairs (version, state, public_key, encrypted_private_key, private_key_nonce, master_key_id, algorithm, created_at, retired_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		kp.Version,
		kp.State,
		kp.PublicKeyDER,
		kp.EncryptedPrivateKey,
		kp.PrivateKeyNonce,
		kp.MasterKeyID,
		kp.Algorithm,
		kp.CreatedAt,
		kp.RetiredAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create keypair")
	}
	return nil
}

// Update modifies the lifecycle fields of an existing key pair version.
func (p *PostgreSQLKeyPairRepository) Update(ctx context.Context, kp *keyringDomain.KeyPair) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE keypairs SET state = $1, retired_at = $2 WHERE version = $3`

	_, err := querier.ExecContext(ctx, query, kp.State, kp.RetiredAt, kp.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to update keypair")
	}
	return nil
}

// GetByVersion retrieves one key pair by version.
func (p *PostgreSQLKeyPairRepository) GetByVersion(
	ctx context.Context, version uint,
) (*keyringDomain.KeyPair, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT version, state, public_key, encrypted_private_key, private_key_nonce, master_key_id, algorithm, created_at, retired_at
			  FROM keypairs WHERE version = $1`

	kp := &keyringDomain.KeyPair{}
	err := querier.QueryRowContext(ctx, query, version).Scan(
		&kp.Version,
		&kp.State,
		&kp.PublicKeyDER,
		&kp.EncryptedPrivateKey,
		&kp.PrivateKeyNonce,
		&kp.MasterKeyID,
		&kp.Algorithm,
		&kp.CreatedAt,
		&kp.RetiredAt,
	)
	if err == sql.ErrNoRows {
		return nil, keyringDomain.ErrKeyNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get keypair")
	}
	return kp, nil
}

// List retrieves all key pairs ordered by version descending.
func (p *PostgreSQLKeyPairRepository) List(ctx context.Context) ([]*keyringDomain.KeyPair, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT version, state, public_key, encrypted_private_key, private_key_nonce, master_key_id, algorithm, created_at, retired_at
			  FROM keypairs ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keypairs")
	}
	defer rows.Close()

	var pairs []*keyringDomain.KeyPair
	for rows.Next() {
		kp := &keyringDomain.KeyPair{}
		if err := rows.Scan(
			&kp.Version,
			&kp.State,
			&kp.PublicKeyDER,
			&kp.EncryptedPrivateKey,
			&kp.PrivateKeyNonce,
			&kp.MasterKeyID,
			&kp.Algorithm,
			&kp.CreatedAt,
			&kp.RetiredAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan keypair")
		}
		pairs = append(pairs, kp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate keypairs")
	}
	return pairs, nil
}

// Delete removes a key pair row. The use case enforces the reference guard.
func (p *PostgreSQLKeyPairRepository) Delete(ctx context.Context, version uint) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM keypairs WHERE version = $1`, version)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete keypair")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return keyringDomain.ErrKeyNotFound
	}
	return nil
}
