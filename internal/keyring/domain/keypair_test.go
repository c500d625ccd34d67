package domain

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
)

func newTestKeyPair(t *testing.T, version uint, state KeyState) *KeyPair {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	return &KeyPair{
		Version:      version,
		State:        state,
		PublicKeyDER: publicDER,
		MasterKeyID:  "test-master-key",
		Algorithm:    cryptoDomain.AESGCM,
		PrivateKey:   privateKey,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestKeyPair_PublicKey(t *testing.T) {
	t.Run("parses stored SPKI bytes", func(t *testing.T) {
		kp := newTestKeyPair(t, 1, StateCurrent)

		pub, err := kp.PublicKey()
		require.NoError(t, err)
		assert.Equal(t, &kp.PrivateKey.PublicKey, pub)
	})

	t.Run("rejects garbage DER", func(t *testing.T) {
		kp := &KeyPair{Version: 1, PublicKeyDER: []byte("not der")}
		_, err := kp.PublicKey()
		assert.Error(t, err)
	})
}

func TestKeyPair_DistributionString(t *testing.T) {
	kp := newTestKeyPair(t, 5, StateCurrent)

	dist := kp.DistributionString()

	prefix, encoded, found := strings.Cut(dist, ":")
	require.True(t, found)
	assert.Equal(t, "v5", prefix)

	// The body is base64 of a PEM-armored SPKI public key.
	pemBytes, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	block, rest := pem.Decode(pemBytes)
	require.NotNil(t, block)
	assert.Equal(t, "PUBLIC KEY", block.Type)
	assert.Empty(t, rest)
	assert.Equal(t, kp.PublicKeyDER, block.Bytes)
}

func TestKeyPair_DeriveIndexKey(t *testing.T) {
	t.Run("derivation is deterministic", func(t *testing.T) {
		kp := newTestKeyPair(t, 1, StateCurrent)

		key1, err := kp.DeriveIndexKey()
		require.NoError(t, err)
		assert.Len(t, key1, cryptoDomain.KeySize)

		key2, err := kp.DeriveIndexKey()
		require.NoError(t, err)
		assert.Equal(t, key1, key2)
	})

	t.Run("different key pairs derive different index keys", func(t *testing.T) {
		kp1 := newTestKeyPair(t, 1, StateRetired)
		kp2 := newTestKeyPair(t, 2, StateCurrent)

		key1, err := kp1.DeriveIndexKey()
		require.NoError(t, err)

		key2, err := kp2.DeriveIndexKey()
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})

	t.Run("fails without a loaded private key", func(t *testing.T) {
		kp := &KeyPair{Version: 1}
		_, err := kp.DeriveIndexKey()
		assert.ErrorIs(t, err, ErrPrivateKeyNotLoaded)
	})
}

func TestNewKeyring(t *testing.T) {
	t.Run("builds ring with current version", func(t *testing.T) {
		pairs := []*KeyPair{
			newTestKeyPair(t, 3, StateCurrent),
			newTestKeyPair(t, 2, StateRetired),
			newTestKeyPair(t, 1, StateRetired),
		}

		kr, err := NewKeyring(pairs)
		require.NoError(t, err)
		assert.Equal(t, uint(3), kr.CurrentVersion())

		current, ok := kr.Current()
		require.True(t, ok)
		assert.Equal(t, uint(3), current.Version)
	})

	t.Run("fails without a current version", func(t *testing.T) {
		pairs := []*KeyPair{
			newTestKeyPair(t, 2, StateRetired),
			newTestKeyPair(t, 1, StateRetired),
		}

		_, err := NewKeyring(pairs)
		assert.ErrorIs(t, err, ErrNoCurrentKey)
	})

	t.Run("fails with no pairs at all", func(t *testing.T) {
		_, err := NewKeyring(nil)
		assert.ErrorIs(t, err, ErrNoCurrentKey)
	})
}

func TestKeyring_Get(t *testing.T) {
	kr, err := NewKeyring([]*KeyPair{
		newTestKeyPair(t, 2, StateCurrent),
		newTestKeyPair(t, 1, StateRetired),
	})
	require.NoError(t, err)

	t.Run("existing version", func(t *testing.T) {
		kp, ok := kr.Get(1)
		require.True(t, ok)
		assert.Equal(t, uint(1), kp.Version)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, ok := kr.Get(99)
		assert.False(t, ok)
	})
}

func TestKeyring_ActiveVersionsDesc(t *testing.T) {
	kr, err := NewKeyring([]*KeyPair{
		newTestKeyPair(t, 1, StateRetired),
		newTestKeyPair(t, 4, StateCurrent),
		newTestKeyPair(t, 2, StateRevoked),
		newTestKeyPair(t, 3, StateRetired),
	})
	require.NoError(t, err)

	versions := kr.ActiveVersionsDesc()

	// Descending, revoked excluded.
	assert.Equal(t, []uint{4, 3, 1}, versions)
}

func TestKeyring_Close(t *testing.T) {
	kp := newTestKeyPair(t, 1, StateCurrent)
	indexKey, err := kp.DeriveIndexKey()
	require.NoError(t, err)
	kp.IndexKey = indexKey

	kr, err := NewKeyring([]*KeyPair{kp})
	require.NoError(t, err)

	kr.Close()

	assert.Equal(t, uint(0), kr.CurrentVersion())
	_, ok := kr.Get(1)
	assert.False(t, ok)
	assert.Nil(t, kp.PrivateKey)
	assert.Equal(t, make([]byte, cryptoDomain.KeySize), kp.IndexKey)
}
