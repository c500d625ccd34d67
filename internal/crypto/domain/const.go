package domain

// Algorithm represents the AEAD algorithm used for payload encryption.
//
// Both supported algorithms provide Authenticated Encryption with Associated
// Data (AEAD) with 256-bit keys, 96-bit nonces and 128-bit authentication tags.
// AESGCM is the default for envelopes produced by browser clients (WebCrypto
// only ships AES-GCM); ChaCha20 is available for at-rest re-encryption on
// hosts without AES-NI.
type Algorithm string

const (
	// AESGCM represents the AES-256-GCM authenticated encryption algorithm.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents the ChaCha20-Poly1305 authenticated encryption algorithm.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the required size in bytes for every symmetric key (256 bits).
	KeySize = 32

	// NonceSize is the AEAD nonce size in bytes (96 bits) for both algorithms.
	NonceSize = 12

	// TagSize is the AEAD authentication tag size in bytes appended to ciphertext.
	TagSize = 16
)
