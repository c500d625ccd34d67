package domain

import (
	"github.com/allisson/pii-vault/internal/errors"
)

var (
	// ErrProfileNotFound indicates the requested profile does not exist.
	//
	// HTTP Status: 404 Not Found
	ErrProfileNotFound = errors.Wrap(errors.ErrNotFound, "profile not found")

	// ErrDuplicateNationalID indicates a profile with the same national ID
	// already exists. The duplicate check decrypts blind-index candidates and
	// compares plaintexts, so index collisions cannot cause false positives.
	//
	// HTTP Status: 409 Conflict
	ErrDuplicateNationalID = errors.Wrap(errors.ErrConflict, "national ID already registered")

	// ErrInvalidNationalID indicates the national ID failed format validation.
	//
	// HTTP Status: 422 Unprocessable Entity
	ErrInvalidNationalID = errors.Wrap(errors.ErrInvalidInput, "invalid national ID")
)
