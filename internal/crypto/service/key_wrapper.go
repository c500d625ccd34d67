package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
)

// RSAKeyWrapper implements the KeyWrapper interface using RSA-OAEP.
//
// OAEP with SHA-256 (and MGF1-SHA256) is the padding mode WebCrypto clients
// use, and it is resistant to the chosen-ciphertext attacks that break
// textbook and PKCS#1 v1.5 RSA. Raw RSA is deliberately not supported.
//
// Unwrap collapses every failure mode into cryptoDomain.ErrUnwrap so a
// network caller cannot distinguish "wrong key" from "corrupted input". The
// only pre-check is a ciphertext length comparison against the modulus size,
// which is public information.
type RSAKeyWrapper struct{}

// NewRSAKeyWrapper creates a new RSAKeyWrapper.
func NewRSAKeyWrapper() *RSAKeyWrapper {
	return &RSAKeyWrapper{}
}

// Wrap encrypts a symmetric key under the given RSA public key using
// RSA-OAEP with SHA-256.
func (w *RSAKeyWrapper) Wrap(key []byte, publicKey *rsa.PublicKey) ([]byte, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap symmetric key: %w", err)
	}

	return wrapped, nil
}

// Unwrap decrypts a wrapped symmetric key with the given RSA private key.
//
// The wrapped blob must be exactly the modulus size; anything else cannot be
// a valid RSA ciphertext for this key. All decryption failures return
// cryptoDomain.ErrUnwrap without further detail.
func (w *RSAKeyWrapper) Unwrap(wrapped []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	if len(wrapped) != privateKey.Size() {
		return nil, cryptoDomain.ErrUnwrap
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrapped, nil)
	if err != nil {
		return nil, cryptoDomain.ErrUnwrap
	}

	return key, nil
}
