package domain

import (
	"github.com/allisson/pii-vault/internal/errors"
)

var (
	// ErrSameVersion indicates source and target key versions are equal;
	// there is nothing to migrate.
	ErrSameVersion = errors.Wrap(errors.ErrInvalidInput, "source and target key versions are equal")

	// ErrVerificationFailed indicates staged data did not round-trip: the
	// staged ciphertext decrypted to different bytes or the staged blind
	// index did not match. The record commit is refused.
	ErrVerificationFailed = errors.New("staged record failed verification")
)
