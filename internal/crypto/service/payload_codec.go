package service

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
)

// PayloadCodecService implements the PayloadCodec interface.
//
// The codec realizes the per-message key design: every encryption generates a
// fresh random 256-bit symmetric key and 96-bit nonce, so nonce reuse under a
// given key is structurally impossible. The key exists only to be wrapped
// under the server public key; the caller zeroes it after wrapping.
//
// Payloads are serialized with encoding/json, which emits map keys in sorted
// order, so decrypt-then-reparse round-trips the same canonical bytes.
type PayloadCodecService struct {
	aeadManager AEADManager
	algorithm   cryptoDomain.Algorithm
}

// NewPayloadCodec creates a PayloadCodecService using the given AEAD algorithm.
//
// AESGCM is the interoperable choice for client envelopes; ChaCha20 may be
// configured for server-side at-rest encryption.
func NewPayloadCodec(aeadManager AEADManager, alg cryptoDomain.Algorithm) *PayloadCodecService {
	return &PayloadCodecService{
		aeadManager: aeadManager,
		algorithm:   alg,
	}
}

// Encrypt serializes payload to canonical JSON and encrypts it under a
// freshly generated symmetric key and nonce.
//
// Returns the single-use key (for wrapping), the nonce and the ciphertext
// with the authentication tag appended. There is deliberately no way to
// supply a key or nonce from outside.
func (p *PayloadCodecService) Encrypt(payload map[string]any) (key, nonce, ciphertext []byte, err error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	return p.EncryptBytes(plaintext)
}

// Decrypt decrypts ciphertext and deserializes the plaintext as a JSON object.
//
// Fails closed: an authentication failure, truncated input or malformed nonce
// yields cryptoDomain.ErrIntegrity with no partial plaintext; valid ciphertext
// that does not decode to a JSON object yields cryptoDomain.ErrInvalidPayload.
func (p *PayloadCodecService) Decrypt(key, nonce, ciphertext []byte) (map[string]any, error) {
	plaintext, err := p.DecryptBytes(key, nonce, ciphertext)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		cryptoDomain.Zero(plaintext)
		return nil, cryptoDomain.ErrInvalidPayload
	}

	return payload, nil
}

// EncryptBytes encrypts an opaque byte payload under a fresh key and nonce.
func (p *PayloadCodecService) EncryptBytes(plaintext []byte) (key, nonce, ciphertext []byte, err error) {
	key = make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate symmetric key: %w", err)
	}

	aead, err := p.aeadManager.CreateCipher(key, p.algorithm)
	if err != nil {
		return nil, nil, nil, err
	}

	ciphertext, nonce, err = aead.Encrypt(plaintext, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	return key, nonce, ciphertext, nil
}

// DecryptBytes decrypts an opaque byte payload.
// Returns cryptoDomain.ErrIntegrity on any structural or authentication failure.
func (p *PayloadCodecService) DecryptBytes(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != cryptoDomain.NonceSize {
		return nil, cryptoDomain.ErrIntegrity
	}
	if len(ciphertext) < cryptoDomain.TagSize {
		return nil, cryptoDomain.ErrIntegrity
	}

	aead, err := p.aeadManager.CreateCipher(key, p.algorithm)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Decrypt(ciphertext, nonce, nil)
	if err != nil {
		return nil, cryptoDomain.ErrIntegrity
	}

	return plaintext, nil
}
