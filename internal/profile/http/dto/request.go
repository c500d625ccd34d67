// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/pii-vault/internal/validation"
)

// CreateProfileRequest mirrors the wire envelope submitted by clients.
//
// KeyVersion is the key pair version the client encrypted against; zero (or
// absent) marks a legacy envelope resolved as the current version.
// EncryptedPayload is base64 of nonce || ciphertext.
type CreateProfileRequest struct {
	KeyVersion       uint   `json:"keyVersion"`
	EncryptedKey     string `json:"encryptedKey"`
	EncryptedPayload string `json:"encryptedPayload"`
}

// Validate checks if the create profile request is structurally valid.
// Cryptographic validation happens later; this only rejects obviously
// malformed submissions before any key material is touched.
func (r *CreateProfileRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.EncryptedKey,
			validation.Required,
			customValidation.NotBlank,
			customValidation.Base64,
		),
		validation.Field(&r.EncryptedPayload,
			validation.Required,
			customValidation.NotBlank,
			customValidation.Base64,
		),
	)
}

// ExistenceRequest contains the parameters for a profile existence check.
type ExistenceRequest struct {
	NationalID string `json:"nationalId"`
}

// Validate checks if the existence request is valid.
func (r *ExistenceRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.NationalID,
			validation.Required,
			customValidation.NotBlank,
			customValidation.NoWhitespace,
			validation.Length(1, 128),
		),
	)
}
