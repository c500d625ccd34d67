// Package service provides the cryptographic services for the envelope protocol.
// Implements AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305), the per-message
// payload codec and the RSA-OAEP key wrapper.
package service

import (
	"crypto/rsa"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// PayloadCodec defines the interface for per-message payload encryption.
//
// Every Encrypt call generates a fresh random symmetric key and nonce, so a
// nonce can never be reused under the same key by construction. The codec
// never accepts a caller-supplied nonce.
type PayloadCodec interface {
	// Encrypt serializes payload to canonical JSON and encrypts it under a
	// freshly generated 256-bit key. The returned key is single-use: wrap it,
	// then zero it.
	Encrypt(payload map[string]any) (key, nonce, ciphertext []byte, err error)

	// Decrypt decrypts and deserializes a payload. Fails closed with
	// domain.ErrIntegrity on any authentication or framing failure.
	Decrypt(key, nonce, ciphertext []byte) (map[string]any, error)

	// EncryptBytes encrypts an opaque byte payload under a fresh key.
	// Used for at-rest record encryption where the plaintext is not JSON.
	EncryptBytes(plaintext []byte) (key, nonce, ciphertext []byte, err error)

	// DecryptBytes decrypts an opaque byte payload.
	DecryptBytes(key, nonce, ciphertext []byte) ([]byte, error)
}

// KeyWrapper defines the interface for asymmetric wrapping of symmetric keys.
type KeyWrapper interface {
	// Wrap encrypts a symmetric key under the given RSA public key.
	Wrap(key []byte, publicKey *rsa.PublicKey) ([]byte, error)

	// Unwrap decrypts a wrapped symmetric key with the given RSA private key.
	// All failures collapse into domain.ErrUnwrap.
	Unwrap(wrapped []byte, privateKey *rsa.PrivateKey) ([]byte, error)
}
