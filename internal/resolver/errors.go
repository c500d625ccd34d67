package resolver

import (
	"github.com/allisson/pii-vault/internal/errors"
)

var (
	// ErrUnknownKeyVersion indicates an envelope is tagged with a version the
	// registry does not hold. Tagged versions are authoritative, so there is
	// no fallback: the envelope cannot be decrypted.
	//
	// HTTP Status: 422 Unprocessable Entity
	ErrUnknownKeyVersion = errors.Wrap(errors.ErrInvalidInput, "unknown key version")

	// ErrDecryptionExhausted indicates a stored record could not be decrypted
	// with any active key version. Alert-worthy: either key material was
	// destroyed prematurely or the record is corrupt.
	ErrDecryptionExhausted = errors.New("record decryption exhausted all active key versions")
)
