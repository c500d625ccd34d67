package dto

// PublicKeyResponse carries the current public key distribution string,
// format "v<N>:<base64 of PEM-encoded SPKI public key>".
type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// CreateProfileResponse carries the identifier of a newly created profile.
type CreateProfileResponse struct {
	ID string `json:"id"`
}

// ExistenceResponse carries the result of a profile existence check.
type ExistenceResponse struct {
	Exists bool `json:"exists"`
}
