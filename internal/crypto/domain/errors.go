package domain

import (
	"github.com/allisson/pii-vault/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors
// to provide context for cryptographic failures. The error handling layer
// maps all of them to generic client-facing responses: a network caller is
// never told why an envelope failed to decrypt.
var (
	// ErrIntegrity indicates AEAD authentication failed during decryption.
	//
	// The ciphertext was truncated, tampered with, or decrypted with the
	// wrong symmetric key. No partial plaintext is ever returned.
	//
	// HTTP Status: 422 Unprocessable Entity
	ErrIntegrity = errors.Wrap(errors.ErrInvalidInput, "payload integrity check failed")

	// ErrUnwrap indicates the wrapped symmetric key could not be recovered.
	//
	// Wrong private key, corrupted input and malformed RSA ciphertext all
	// collapse into this single error so the failure cause is not
	// distinguishable by a caller.
	//
	// HTTP Status: 422 Unprocessable Entity
	ErrUnwrap = errors.Wrap(errors.ErrInvalidInput, "key unwrap failed")

	// ErrMalformedEnvelope indicates the envelope failed structural validation.
	//
	// Returned before any cryptographic operation is attempted: missing
	// fields, invalid base64, or a payload too short to contain the nonce
	// and authentication tag.
	//
	// HTTP Status: 422 Unprocessable Entity
	ErrMalformedEnvelope = errors.Wrap(errors.ErrInvalidInput, "malformed envelope")

	// ErrUnsupportedAlgorithm indicates the requested AEAD algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a symmetric key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrInvalidPayload indicates the decrypted bytes are not a JSON object.
	ErrInvalidPayload = errors.Wrap(errors.ErrInvalidInput, "invalid payload encoding")
)

// Master key configuration error definitions. These are operator-facing
// startup failures, never surfaced to network callers.
var (
	// ErrMasterKeysNotSet indicates the MASTER_KEYS environment variable is missing.
	ErrMasterKeysNotSet = errors.New("MASTER_KEYS environment variable is not set")

	// ErrActiveMasterKeyIDNotSet indicates ACTIVE_MASTER_KEY_ID is missing.
	ErrActiveMasterKeyIDNotSet = errors.New("ACTIVE_MASTER_KEY_ID environment variable is not set")

	// ErrInvalidMasterKeysFormat indicates a MASTER_KEYS entry is not "id:base64key".
	ErrInvalidMasterKeysFormat = errors.New("invalid master keys format")

	// ErrInvalidMasterKeyBase64 indicates a master key value is not valid base64.
	ErrInvalidMasterKeyBase64 = errors.New("invalid master key base64")

	// ErrActiveMasterKeyNotFound indicates the active key ID is absent from the chain.
	ErrActiveMasterKeyNotFound = errors.New("active master key not found in chain")

	// ErrMasterKeyNotFound indicates a referenced master key is absent from the chain.
	ErrMasterKeyNotFound = errors.Wrap(errors.ErrNotFound, "master key not found")
)
