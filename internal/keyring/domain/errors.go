package domain

import (
	"github.com/allisson/pii-vault/internal/errors"
)

// Key registry error definitions.
//
// These are registry invariant violations: operator-facing, fatal to the
// operation that triggered them but never to the process.
var (
	// ErrKeyNotFound indicates no key pair exists for the requested version.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key version not found")

	// ErrKeyInUse indicates a destroy was refused because stored records still
	// reference the version. Destroying it would make their ciphertext
	// permanently undecryptable.
	ErrKeyInUse = errors.Wrap(errors.ErrConflict, "key version still referenced by records")

	// ErrKeyRevoked indicates the requested version exists but was revoked.
	ErrKeyRevoked = errors.Wrap(errors.ErrInvalidInput, "key version revoked")

	// ErrNoCurrentKey indicates the registry holds no current key pair.
	ErrNoCurrentKey = errors.New("no current key pair in registry")

	// ErrCannotRetireCurrent indicates an attempt to retire or revoke the
	// current version. Rotate first so a current key always exists.
	ErrCannotRetireCurrent = errors.Wrap(errors.ErrConflict, "cannot retire the current key version")

	// ErrPrivateKeyNotLoaded indicates a key pair was used before its private
	// key was unwrapped.
	ErrPrivateKeyNotLoaded = errors.New("private key not loaded")
)
