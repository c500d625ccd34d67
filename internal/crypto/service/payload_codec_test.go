package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
)

func newTestCodec() *PayloadCodecService {
	return NewPayloadCodec(NewAEADManager(), cryptoDomain.AESGCM)
}

func TestNewPayloadCodec(t *testing.T) {
	codec := newTestCodec()
	assert.NotNil(t, codec)
}

func TestPayloadCodecService_Encrypt(t *testing.T) {
	codec := newTestCodec()
	payload := map[string]any{
		"nationalId": "123456789012",
		"fullName":   "Jane Doe",
	}

	t.Run("encrypt generates fresh key and nonce", func(t *testing.T) {
		key, nonce, ciphertext, err := codec.Encrypt(payload)
		require.NoError(t, err)
		assert.Len(t, key, cryptoDomain.KeySize)
		assert.Len(t, nonce, cryptoDomain.NonceSize)
		assert.GreaterOrEqual(t, len(ciphertext), cryptoDomain.TagSize)
	})

	t.Run("each encryption uses a different key and nonce", func(t *testing.T) {
		key1, nonce1, ciphertext1, err := codec.Encrypt(payload)
		require.NoError(t, err)

		key2, nonce2, ciphertext2, err := codec.Encrypt(payload)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
		assert.NotEqual(t, nonce1, nonce2)
		assert.NotEqual(t, ciphertext1, ciphertext2)
	})

	t.Run("encrypt rejects unserializable payload", func(t *testing.T) {
		bad := map[string]any{"fn": func() {}}
		_, _, _, err := codec.Encrypt(bad)
		assert.Error(t, err)
	})
}

func TestPayloadCodecService_Decrypt(t *testing.T) {
	codec := newTestCodec()
	payload := map[string]any{
		"nationalId": "123456789012",
		"fullName":   "Jane Doe",
	}

	t.Run("round-trips a payload", func(t *testing.T) {
		key, nonce, ciphertext, err := codec.Encrypt(payload)
		require.NoError(t, err)

		decrypted, err := codec.Decrypt(key, nonce, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, payload, decrypted)
	})

	t.Run("single-bit tamper fails closed", func(t *testing.T) {
		key, nonce, ciphertext, err := codec.Encrypt(payload)
		require.NoError(t, err)

		ciphertext[len(ciphertext)/2] ^= 0x01
		decrypted, err := codec.Decrypt(key, nonce, ciphertext)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
		assert.Nil(t, decrypted)
	})

	t.Run("wrong key fails closed", func(t *testing.T) {
		_, nonce, ciphertext, err := codec.Encrypt(payload)
		require.NoError(t, err)

		otherKey, _, _, err := codec.Encrypt(payload)
		require.NoError(t, err)

		_, err = codec.Decrypt(otherKey, nonce, ciphertext)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("wrong nonce length fails closed", func(t *testing.T) {
		key, _, ciphertext, err := codec.Encrypt(payload)
		require.NoError(t, err)

		_, err = codec.Decrypt(key, make([]byte, 8), ciphertext)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("truncated ciphertext fails closed", func(t *testing.T) {
		key, nonce, _, err := codec.Encrypt(payload)
		require.NoError(t, err)

		_, err = codec.Decrypt(key, nonce, make([]byte, cryptoDomain.TagSize-1))
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("valid ciphertext that is not a JSON object", func(t *testing.T) {
		key, nonce, ciphertext, err := codec.EncryptBytes([]byte(`"just a string"`))
		require.NoError(t, err)

		_, err = codec.Decrypt(key, nonce, ciphertext)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidPayload)
	})
}

func TestPayloadCodecService_EncryptBytes(t *testing.T) {
	codec := newTestCodec()

	t.Run("round-trips opaque bytes", func(t *testing.T) {
		plaintext := []byte{0x00, 0x01, 0xFF, 0xFE, 0x7F}

		key, nonce, ciphertext, err := codec.EncryptBytes(plaintext)
		require.NoError(t, err)

		decrypted, err := codec.DecryptBytes(key, nonce, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("round-trips empty plaintext", func(t *testing.T) {
		key, nonce, ciphertext, err := codec.EncryptBytes([]byte{})
		require.NoError(t, err)
		assert.Len(t, ciphertext, cryptoDomain.TagSize)

		decrypted, err := codec.DecryptBytes(key, nonce, ciphertext)
		require.NoError(t, err)
		assert.Empty(t, decrypted)
	})
}

func TestPayloadCodecService_ChaCha20(t *testing.T) {
	codec := NewPayloadCodec(NewAEADManager(), cryptoDomain.ChaCha20)
	payload := map[string]any{"nationalId": "123456789012"}

	key, nonce, ciphertext, err := codec.Encrypt(payload)
	require.NoError(t, err)

	decrypted, err := codec.Decrypt(key, nonce, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, payload, decrypted)
}
