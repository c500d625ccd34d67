package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	cryptoService "github.com/allisson/pii-vault/internal/crypto/service"
	"github.com/allisson/pii-vault/internal/database"
	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
)

// DefaultKeyBits is the RSA modulus size for new key pairs. 3072 bits keeps
// ~128-bit security; browser WebCrypto handles it without issue.
const DefaultKeyBits = 3072

// keyringUseCase implements the KeyringUseCase interface.
type keyringUseCase struct {
	txManager   database.TxManager
	keyPairRepo KeyPairRepository
	aeadManager cryptoService.AEADManager
	records     RecordCounter
	cache       CacheInvalidator
	logger      *slog.Logger
}

// NewKeyringUseCase creates a new key registry use case.
//
// The cache invalidator may be nil (e.g. in CLI commands that never resolve
// records); Destroy then skips cache flushing.
func NewKeyringUseCase(
	txManager database.TxManager,
	keyPairRepo KeyPairRepository,
	aeadManager cryptoService.AEADManager,
	records RecordCounter,
	cache CacheInvalidator,
	logger *slog.Logger,
) KeyringUseCase {
	return &keyringUseCase{
		txManager:   txManager,
		keyPairRepo: keyPairRepo,
		aeadManager: aeadManager,
		records:     records,
		cache:       cache,
		logger:      logger,
	}
}

// getMasterKey retrieves a master key from the chain by its ID.
func (k *keyringUseCase) getMasterKey(
	masterKeyChain *cryptoDomain.MasterKeyChain, id string,
) (*cryptoDomain.MasterKey, error) {
	masterKey, ok := masterKeyChain.Get(id)
	if !ok {
		return nil, cryptoDomain.ErrMasterKeyNotFound
	}
	return masterKey, nil
}

// Load decrypts all non-revoked key pairs and assembles the in-memory Keyring.
//
// Revoked versions are skipped entirely: their private keys stay encrypted at
// rest and never enter process memory. Each loaded pair also gets its
// blind-index key derived, so request handling never touches the KDF.
func (k *keyringUseCase) Load(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
) (*keyringDomain.Keyring, error) {
	pairs, err := k.keyPairRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	loaded := make([]*keyringDomain.KeyPair, 0, len(pairs))
	for _, kp := range pairs {
		if kp.State == keyringDomain.StateRevoked {
			continue
		}

		masterKey, err := k.getMasterKey(masterKeyChain, kp.MasterKeyID)
		if err != nil {
			return nil, err
		}

		aead, err := k.aeadManager.CreateCipher(masterKey.Key, kp.Algorithm)
		if err != nil {
			return nil, err
		}

		der, err := aead.Decrypt(kp.EncryptedPrivateKey, kp.PrivateKeyNonce, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key for version %d: %w", kp.Version, err)
		}

		parsed, err := x509.ParsePKCS8PrivateKey(der)
		cryptoDomain.Zero(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key for version %d: %w", kp.Version, err)
		}
		privateKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key version %d is not an RSA private key", kp.Version)
		}
		kp.PrivateKey = privateKey

		indexKey, err := kp.DeriveIndexKey()
		if err != nil {
			return nil, err
		}
		kp.IndexKey = indexKey

		loaded = append(loaded, kp)
	}

	return keyringDomain.NewKeyring(loaded)
}

// RegisterNewVersion generates and persists a new current key pair.
//
// The version number is max(existing)+1, never reused. Within one transaction
// the previous current version flips to retired and the new pair is inserted
// as current, so concurrent readers observe either the old or the new current
// version, never neither.
func (k *keyringUseCase) RegisterNewVersion(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	bits int,
) (uint, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}

	masterKey, err := k.getMasterKey(masterKeyChain, masterKeyChain.ActiveMasterKeyID())
	if err != nil {
		return 0, err
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return 0, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return 0, fmt.Errorf("failed to encode public key: %w", err)
	}

	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return 0, fmt.Errorf("failed to encode private key: %w", err)
	}
	defer cryptoDomain.Zero(privateDER)

	aead, err := k.aeadManager.CreateCipher(masterKey.Key, cryptoDomain.AESGCM)
	if err != nil {
		return 0, err
	}

	encryptedPrivateKey, nonce, err := aead.Encrypt(privateDER, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	var newVersion uint
	err = k.txManager.WithTx(ctx, func(ctx context.Context) error {
		pairs, err := k.keyPairRepo.List(ctx)
		if err != nil {
			return err
		}

		newVersion = 1
		for _, kp := range pairs {
			if kp.Version >= newVersion {
				newVersion = kp.Version + 1
			}
			if kp.State == keyringDomain.StateCurrent {
				now := time.Now().UTC()
				kp.State = keyringDomain.StateRetired
				kp.RetiredAt = &now
				if err := k.keyPairRepo.Update(ctx, kp); err != nil {
					return err
				}
			}
		}

		return k.keyPairRepo.Create(ctx, &keyringDomain.KeyPair{
			Version:             newVersion,
			State:               keyringDomain.StateCurrent,
			PublicKeyDER:        publicDER,
			EncryptedPrivateKey: encryptedPrivateKey,
			PrivateKeyNonce:     nonce,
			MasterKeyID:         masterKey.ID,
			Algorithm:           cryptoDomain.AESGCM,
			CreatedAt:           time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, err
	}

	k.logger.Info("registered new key pair version",
		slog.Uint64("version", uint64(newVersion)),
		slog.Int("bits", bits),
	)

	return newVersion, nil
}

// Retire marks a version as revoked, removing it from the decryption set.
// The current version is protected: rotate first. Refused while records still
// reference the version, because revoking their only key strands them.
func (k *keyringUseCase) Retire(ctx context.Context, version uint) error {
	return k.txManager.WithTx(ctx, func(ctx context.Context) error {
		kp, err := k.keyPairRepo.GetByVersion(ctx, version)
		if err != nil {
			return err
		}
		if kp.State == keyringDomain.StateCurrent {
			return keyringDomain.ErrCannotRetireCurrent
		}

		count, err := k.records.CountByKeyVersion(ctx, version)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: version %d has %d records", keyringDomain.ErrKeyInUse, version, count)
		}

		now := time.Now().UTC()
		kp.State = keyringDomain.StateRevoked
		if kp.RetiredAt == nil {
			kp.RetiredAt = &now
		}
		return k.keyPairRepo.Update(ctx, kp)
	})
}

// Destroy permanently deletes a key pair version.
//
// The zero-references guard runs inside the delete transaction so a record
// written concurrently under the version cannot slip past it. On success the
// resolver cache is flushed: cached resolutions pointing at the destroyed
// version must not outlive it.
func (k *keyringUseCase) Destroy(ctx context.Context, version uint) error {
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		kp, err := k.keyPairRepo.GetByVersion(ctx, version)
		if err != nil {
			return err
		}
		if kp.State == keyringDomain.StateCurrent {
			return keyringDomain.ErrCannotRetireCurrent
		}

		count, err := k.records.CountByKeyVersion(ctx, version)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: version %d has %d records", keyringDomain.ErrKeyInUse, version, count)
		}

		return k.keyPairRepo.Delete(ctx, version)
	})
	if err != nil {
		return err
	}

	if k.cache != nil {
		k.cache.Flush()
	}

	k.logger.Info("destroyed key pair version", slog.Uint64("version", uint64(version)))
	return nil
}
