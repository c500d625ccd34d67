// Package domain defines the encrypted profile record domain models.
//
// A profile stores one citizen's national ID, encrypted at rest with a
// per-record symmetric key wrapped under a versioned server key pair, plus a
// deterministic blind index enabling equality search without decryption.
package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"time"

	"github.com/google/uuid"
)

// Profile represents an encrypted profile record.
//
// Invariant: KeyVersion always matches the key pair that wrapped WrappedKey
// and derived BlindIndex. The rotation migrator swaps all of these fields in
// a single atomic update, so a reader never observes a mixed record.
type Profile struct {
	ID         uuid.UUID // Unique identifier (UUIDv7)
	KeyVersion uint      // Key pair version protecting this record
	WrappedKey []byte    // Per-record symmetric key wrapped with RSA-OAEP
	Nonce      []byte    // AEAD nonce for the ciphertext
	Ciphertext []byte    // Encrypted national ID with authentication tag
	BlindIndex []byte    // Deterministic HMAC-SHA256 token for equality search
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// NationalID holds the decrypted value in memory only; must be zeroed
	// after use and never persisted or logged.
	NationalID string `json:"-"`
}

// BlindIndex computes the deterministic searchable token for a national ID
// under a version-bound index key.
//
// HMAC-SHA256 keyed with the key pair's derived index key: deterministic so
// equal plaintexts collide on purpose, key-bound so the token is useless
// without the private key. The token is not unique, lookups must
// decrypt-and-compare the candidates.
func BlindIndex(indexKey []byte, nationalID string) []byte {
	mac := hmac.New(sha256.New, indexKey)
	mac.Write([]byte(nationalID))
	return mac.Sum(nil)
}
