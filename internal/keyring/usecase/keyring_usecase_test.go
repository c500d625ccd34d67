package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	cryptoService "github.com/allisson/pii-vault/internal/crypto/service"
	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
)

// fakeTxManager runs the callback without a real transaction.
type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeKeyPairRepo is an in-memory KeyPairRepository.
type fakeKeyPairRepo struct {
	pairs map[uint]*keyringDomain.KeyPair
	err   error
}

func newFakeKeyPairRepo() *fakeKeyPairRepo {
	return &fakeKeyPairRepo{pairs: make(map[uint]*keyringDomain.KeyPair)}
}

func (f *fakeKeyPairRepo) Create(_ context.Context, kp *keyringDomain.KeyPair) error {
	if f.err != nil {
		return f.err
	}
	f.pairs[kp.Version] = kp
	return nil
}

func (f *fakeKeyPairRepo) Update(_ context.Context, kp *keyringDomain.KeyPair) error {
	if f.err != nil {
		return f.err
	}
	f.pairs[kp.Version] = kp
	return nil
}

func (f *fakeKeyPairRepo) GetByVersion(_ context.Context, version uint) (*keyringDomain.KeyPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	kp, ok := f.pairs[version]
	if !ok {
		return nil, keyringDomain.ErrKeyNotFound
	}
	return kp, nil
}

func (f *fakeKeyPairRepo) List(_ context.Context) ([]*keyringDomain.KeyPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	list := make([]*keyringDomain.KeyPair, 0, len(f.pairs))
	for _, kp := range f.pairs {
		list = append(list, kp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version > list[j].Version })
	return list, nil
}

func (f *fakeKeyPairRepo) Delete(_ context.Context, version uint) error {
	if f.err != nil {
		return f.err
	}
	delete(f.pairs, version)
	return nil
}

// fakeRecordCounter returns a fixed count per version.
type fakeRecordCounter struct {
	counts map[uint]int64
}

func (f *fakeRecordCounter) CountByKeyVersion(_ context.Context, version uint) (int64, error) {
	return f.counts[version], nil
}

type fakeCacheInvalidator struct {
	flushed bool
}

func (f *fakeCacheInvalidator) Flush() { f.flushed = true }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadTestMasterKeyChain(t *testing.T) *cryptoDomain.MasterKeyChain {
	t.Helper()

	key := make([]byte, cryptoDomain.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	t.Setenv("MASTER_KEYS", "test-master-key:"+base64.StdEncoding.EncodeToString(key))
	t.Setenv("ACTIVE_MASTER_KEY_ID", "test-master-key")

	mkc, err := cryptoDomain.LoadMasterKeyChain(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(mkc.Close)
	return mkc
}

// storedKeyPair builds a persisted key pair whose private key is encrypted
// with the active master key, the way RegisterNewVersion stores them.
func storedKeyPair(
	t *testing.T,
	mkc *cryptoDomain.MasterKeyChain,
	version uint,
	state keyringDomain.KeyState,
) *keyringDomain.KeyPair {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	require.NoError(t, err)

	masterKey, ok := mkc.Get(mkc.ActiveMasterKeyID())
	require.True(t, ok)

	aead, err := cryptoService.NewAEADManager().CreateCipher(masterKey.Key, cryptoDomain.AESGCM)
	require.NoError(t, err)

	encrypted, nonce, err := aead.Encrypt(privateDER, nil)
	require.NoError(t, err)

	return &keyringDomain.KeyPair{
		Version:             version,
		State:               state,
		PublicKeyDER:        publicDER,
		EncryptedPrivateKey: encrypted,
		PrivateKeyNonce:     nonce,
		MasterKeyID:         masterKey.ID,
		Algorithm:           cryptoDomain.AESGCM,
		CreatedAt:           time.Now().UTC(),
	}
}

func newTestUseCase(repo KeyPairRepository, records RecordCounter, cache CacheInvalidator) KeyringUseCase {
	return NewKeyringUseCase(
		&fakeTxManager{},
		repo,
		cryptoService.NewAEADManager(),
		records,
		cache,
		testLogger(),
	)
}

func TestKeyringUseCase_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("loads and decrypts non-revoked pairs", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateRetired)
		repo.pairs[2] = storedKeyPair(t, mkc, 2, keyringDomain.StateCurrent)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		kr, err := useCase.Load(ctx, mkc)
		require.NoError(t, err)
		defer kr.Close()

		assert.Equal(t, uint(2), kr.CurrentVersion())

		for _, version := range []uint{1, 2} {
			kp, ok := kr.Get(version)
			require.True(t, ok)
			assert.NotNil(t, kp.PrivateKey)
			assert.Len(t, kp.IndexKey, cryptoDomain.KeySize)
		}
	})

	t.Run("skips revoked pairs", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateRevoked)
		repo.pairs[2] = storedKeyPair(t, mkc, 2, keyringDomain.StateCurrent)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		kr, err := useCase.Load(ctx, mkc)
		require.NoError(t, err)
		defer kr.Close()

		_, ok := kr.Get(1)
		assert.False(t, ok)
	})

	t.Run("fails when master key is missing from chain", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		kp := storedKeyPair(t, mkc, 1, keyringDomain.StateCurrent)
		kp.MasterKeyID = "rotated-away"
		repo.pairs[1] = kp

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		_, err := useCase.Load(ctx, mkc)
		assert.ErrorIs(t, err, cryptoDomain.ErrMasterKeyNotFound)
	})

	t.Run("propagates repository error", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.err = assert.AnError

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		_, err := useCase.Load(ctx, mkc)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestKeyringUseCase_RegisterNewVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("first version on empty registry", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		version, err := useCase.RegisterNewVersion(ctx, mkc, 2048)
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)

		kp := repo.pairs[1]
		require.NotNil(t, kp)
		assert.Equal(t, keyringDomain.StateCurrent, kp.State)
		assert.NotEmpty(t, kp.PublicKeyDER)
		assert.NotEmpty(t, kp.EncryptedPrivateKey)
		assert.Equal(t, "test-master-key", kp.MasterKeyID)
	})

	t.Run("rotation retires the previous current version", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateCurrent)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		version, err := useCase.RegisterNewVersion(ctx, mkc, 2048)
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)

		assert.Equal(t, keyringDomain.StateRetired, repo.pairs[1].State)
		assert.NotNil(t, repo.pairs[1].RetiredAt)
		assert.Equal(t, keyringDomain.StateCurrent, repo.pairs[2].State)
	})

	t.Run("version numbers are never reused", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		// Version 3 existed and was destroyed; version 5 is the highest survivor.
		repo.pairs[5] = storedKeyPair(t, mkc, 5, keyringDomain.StateCurrent)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		version, err := useCase.RegisterNewVersion(ctx, mkc, 2048)
		require.NoError(t, err)
		assert.Equal(t, uint(6), version)
	})

	t.Run("stored private key round-trips through Load", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		_, err := useCase.RegisterNewVersion(ctx, mkc, 2048)
		require.NoError(t, err)

		kr, err := useCase.Load(ctx, mkc)
		require.NoError(t, err)
		defer kr.Close()

		current, ok := kr.Current()
		require.True(t, ok)
		assert.NotNil(t, current.PrivateKey)
	})
}

func TestKeyringUseCase_Retire(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes a retired version with no records", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateRetired)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		err := useCase.Retire(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, keyringDomain.StateRevoked, repo.pairs[1].State)
		assert.NotNil(t, repo.pairs[1].RetiredAt)
	})

	t.Run("refuses to retire the current version", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateCurrent)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		err := useCase.Retire(ctx, 1)
		assert.ErrorIs(t, err, keyringDomain.ErrCannotRetireCurrent)
	})

	t.Run("refuses while records still reference the version", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateRetired)
		records := &fakeRecordCounter{counts: map[uint]int64{1: 42}}

		useCase := newTestUseCase(repo, records, nil)

		err := useCase.Retire(ctx, 1)
		assert.ErrorIs(t, err, keyringDomain.ErrKeyInUse)
		assert.Equal(t, keyringDomain.StateRetired, repo.pairs[1].State)
	})

	t.Run("unknown version", func(t *testing.T) {
		repo := newFakeKeyPairRepo()
		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		err := useCase.Retire(ctx, 99)
		assert.ErrorIs(t, err, keyringDomain.ErrKeyNotFound)
	})
}

func TestKeyringUseCase_Destroy(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes an unreferenced retired version and flushes cache", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateRetired)
		cache := &fakeCacheInvalidator{}

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, cache)

		err := useCase.Destroy(ctx, 1)
		require.NoError(t, err)
		assert.NotContains(t, repo.pairs, uint(1))
		assert.True(t, cache.flushed)
	})

	t.Run("works without a cache invalidator", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateRetired)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		err := useCase.Destroy(ctx, 1)
		require.NoError(t, err)
	})

	t.Run("refuses to destroy the current version", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateCurrent)

		useCase := newTestUseCase(repo, &fakeRecordCounter{}, nil)

		err := useCase.Destroy(ctx, 1)
		assert.ErrorIs(t, err, keyringDomain.ErrCannotRetireCurrent)
		assert.Contains(t, repo.pairs, uint(1))
	})

	t.Run("refuses while records still reference the version", func(t *testing.T) {
		mkc := loadTestMasterKeyChain(t)
		repo := newFakeKeyPairRepo()
		repo.pairs[1] = storedKeyPair(t, mkc, 1, keyringDomain.StateRetired)
		records := &fakeRecordCounter{counts: map[uint]int64{1: 1}}
		cache := &fakeCacheInvalidator{}

		useCase := newTestUseCase(repo, records, cache)

		err := useCase.Destroy(ctx, 1)
		assert.ErrorIs(t, err, keyringDomain.ErrKeyInUse)
		assert.Contains(t, repo.pairs, uint(1))
		assert.False(t, cache.flushed)
	})
}
