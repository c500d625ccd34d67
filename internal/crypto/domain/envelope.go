// Package domain defines the core domain models for versioned hybrid encryption.
//
// An Envelope is the self-contained transportable encrypted unit produced by a
// client: a per-message symmetric key wrapped under a versioned server public
// key, plus the AEAD nonce and ciphertext of the payload. Envelopes are
// ephemeral, they are parsed and decrypted once on receipt and never stored.
package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope represents a parsed client envelope.
//
// KeyVersion identifies the server key pair whose public half wrapped the
// symmetric key. The version tag is authoritative: decryption of an envelope
// is attempted with exactly that key pair and never falls back to another
// version. KeyVersion 0 marks a legacy envelope that omitted the field on the
// wire; such envelopes are resolved against the version that was current when
// the envelope was received.
type Envelope struct {
	KeyVersion uint   // Server key pair version (0 = legacy implicit version)
	WrappedKey []byte // Per-message symmetric key wrapped with RSA-OAEP
	Nonce      []byte // AEAD nonce, always NonceSize bytes
	Ciphertext []byte // AEAD ciphertext with the authentication tag appended
}

// envelopeWire is the JSON wire representation of an envelope.
// encryptedPayload decodes to nonce || ciphertext.
type envelopeWire struct {
	KeyVersion       uint   `json:"keyVersion,omitempty"`
	EncryptedKey     string `json:"encryptedKey"`
	EncryptedPayload string `json:"encryptedPayload"`
}

// ParseEnvelope parses the JSON wire form of an envelope into an Envelope.
//
// Parsing is total and side-effect-free: it performs only structural
// validation (field presence, base64 decoding, length checks) and never
// attempts a cryptographic operation. The payload must be long enough to
// contain the 12-byte nonce and the 16-byte authentication tag; anything
// shorter cannot be a valid AEAD output and is rejected up front.
//
// Returns ErrMalformedEnvelope for any structural failure.
func ParseEnvelope(data []byte) (Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: invalid json: %v", ErrMalformedEnvelope, err)
	}

	if wire.EncryptedKey == "" {
		return Envelope{}, fmt.Errorf("%w: missing encryptedKey", ErrMalformedEnvelope)
	}
	if wire.EncryptedPayload == "" {
		return Envelope{}, fmt.Errorf("%w: missing encryptedPayload", ErrMalformedEnvelope)
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(wire.EncryptedKey)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encryptedKey is not valid base64: %v", ErrMalformedEnvelope, err)
	}
	if len(wrappedKey) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty encryptedKey", ErrMalformedEnvelope)
	}

	payload, err := base64.StdEncoding.DecodeString(wire.EncryptedPayload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encryptedPayload is not valid base64: %v", ErrMalformedEnvelope, err)
	}
	if len(payload) < NonceSize+TagSize {
		return Envelope{}, fmt.Errorf(
			"%w: encryptedPayload too short: need at least %d bytes, got %d",
			ErrMalformedEnvelope,
			NonceSize+TagSize,
			len(payload),
		)
	}

	return Envelope{
		KeyVersion: wire.KeyVersion,
		WrappedKey: wrappedKey,
		Nonce:      payload[:NonceSize],
		Ciphertext: payload[NonceSize:],
	}, nil
}

// MarshalWire serializes the envelope to its JSON wire form.
// Round-trips exactly with ParseEnvelope.
func (e Envelope) MarshalWire() ([]byte, error) {
	payload := make([]byte, 0, len(e.Nonce)+len(e.Ciphertext))
	payload = append(payload, e.Nonce...)
	payload = append(payload, e.Ciphertext...)

	wire := envelopeWire{
		KeyVersion:       e.KeyVersion,
		EncryptedKey:     base64.StdEncoding.EncodeToString(e.WrappedKey),
		EncryptedPayload: base64.StdEncoding.EncodeToString(payload),
	}
	return json.Marshal(wire)
}

// IsLegacy reports whether the envelope omitted the key version on the wire.
// Legacy envelopes come from clients that rely on the "key fetched most
// recently" convention and are resolved against the current version.
func (e Envelope) IsLegacy() bool {
	return e.KeyVersion == 0
}
