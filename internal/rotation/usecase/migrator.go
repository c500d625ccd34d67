package usecase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	auditUseCase "github.com/allisson/pii-vault/internal/audit/usecase"
	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	cryptoService "github.com/allisson/pii-vault/internal/crypto/service"
	"github.com/allisson/pii-vault/internal/database"
	apperrors "github.com/allisson/pii-vault/internal/errors"
	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
	"github.com/allisson/pii-vault/internal/metrics"
	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
	"github.com/allisson/pii-vault/internal/resolver"
	rotationDomain "github.com/allisson/pii-vault/internal/rotation/domain"
)

// Config holds migrator configuration.
type Config struct {
	BatchSize       int           // Records claimed per cycle
	Workers         int           // Concurrent record workers per batch
	LeaseDuration   time.Duration // Worker ownership window per record
	StageMaxRetries uint64        // Retries for transient stage failures
}

// Report summarizes one migration run. Counters are updated concurrently by
// the batch workers.
type Report struct {
	FromVersion uint
	ToVersion   uint
	Committed   atomic.Int64
	Failed      atomic.Int64
}

// Migrator re-encrypts records from an old key version to the current one.
//
// Each record moves through stage, verify and commit independently: a failure
// marks that record failed and the batch continues. The live row is only
// touched at commit, by a single UPDATE guarded on the old key version, so a
// reader always sees a fully consistent record.
type Migrator struct {
	config        Config
	txManager     database.TxManager
	migrationRepo MigrationRepository
	profiles      ProfileStore
	decryptor     RecordDecryptor
	keyring       *keyringDomain.Keyring
	codec         cryptoService.PayloadCodec
	wrapper       cryptoService.KeyWrapper
	audit         auditUseCase.Recorder
	metrics       metrics.BusinessMetrics
	logger        *slog.Logger
}

// NewMigrator creates a new record migrator.
func NewMigrator(
	config Config,
	txManager database.TxManager,
	migrationRepo MigrationRepository,
	profiles ProfileStore,
	decryptor RecordDecryptor,
	keyring *keyringDomain.Keyring,
	codec cryptoService.PayloadCodec,
	wrapper cryptoService.KeyWrapper,
	audit auditUseCase.Recorder,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Migrator {
	return &Migrator{
		config:        config,
		txManager:     txManager,
		migrationRepo: migrationRepo,
		profiles:      profiles,
		decryptor:     decryptor,
		keyring:       keyring,
		codec:         codec,
		wrapper:       wrapper,
		audit:         audit,
		metrics:       businessMetrics,
		logger:        logger,
	}
}

// Run migrates all records at fromVersion to the current key version and
// blocks until no claimable records remain or the context is canceled.
//
// Cancellation stops new claim cycles; records already committed stay
// committed. A later run picks up exactly the records still at fromVersion,
// so restarting after a crash or cancel is always safe.
func (mig *Migrator) Run(ctx context.Context, fromVersion uint) (*Report, error) {
	toVersion := mig.keyring.CurrentVersion()
	if fromVersion == toVersion {
		return nil, rotationDomain.ErrSameVersion
	}

	target, ok := mig.keyring.Get(toVersion)
	if !ok || target.PrivateKey == nil || target.IndexKey == nil {
		return nil, keyringDomain.ErrNoCurrentKey
	}
	targetPublicKey, err := target.PublicKey()
	if err != nil {
		return nil, err
	}

	report := &Report{FromVersion: fromVersion, ToVersion: toVersion}

	mig.logger.Info("starting record migration",
		slog.Uint64("from_version", uint64(fromVersion)),
		slog.Uint64("to_version", uint64(toVersion)),
		slog.Int("batch_size", mig.config.BatchSize),
		slog.Int("workers", mig.config.Workers),
	)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var batch []*rotationDomain.RecordMigration
		err := mig.txManager.WithTx(ctx, func(ctx context.Context) error {
			var claimErr error
			batch, claimErr = mig.migrationRepo.ClaimBatch(
				ctx, fromVersion, toVersion, mig.config.BatchSize, mig.config.LeaseDuration,
			)
			return claimErr
		})
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(mig.config.Workers)
		for _, migration := range batch {
			g.Go(func() error {
				mig.migrateRecord(gctx, migration, target, targetPublicKey, report)
				return nil
			})
		}
		// Workers never return errors; per-record failures land in the
		// staging table. Wait only propagates context cancellation.
		if err := g.Wait(); err != nil {
			return report, err
		}
	}

	remaining, err := mig.profiles.CountByKeyVersion(ctx, fromVersion)
	if err != nil {
		return report, err
	}

	if auditErr := mig.audit.Record(ctx, auditDomain.EventMigrationCompleted, map[string]any{
		"from_version": fromVersion,
		"to_version":   toVersion,
		"committed":    report.Committed.Load(),
		"failed":       report.Failed.Load(),
		"remaining":    remaining,
	}); auditErr != nil {
		mig.logger.Error("failed to record audit event", slog.Any("error", auditErr))
	}

	mig.logger.Info("record migration finished",
		slog.Uint64("from_version", uint64(fromVersion)),
		slog.Uint64("to_version", uint64(toVersion)),
		slog.Int64("committed", report.Committed.Load()),
		slog.Int64("failed", report.Failed.Load()),
		slog.Int64("remaining", remaining),
	)

	return report, nil
}

// migrateRecord drives one record through stage, verify and commit.
func (mig *Migrator) migrateRecord(
	ctx context.Context,
	migration *rotationDomain.RecordMigration,
	target *keyringDomain.KeyPair,
	targetPublicKey *rsa.PublicKey,
	report *Report,
) {
	profile, err := mig.profiles.GetByID(ctx, migration.ProfileID)
	if err != nil {
		mig.failRecord(ctx, migration, report, fmt.Sprintf("load record: %v", err))
		return
	}
	if profile.KeyVersion != migration.FromVersion {
		// Another writer already moved the record; nothing left to do.
		migration.Status = rotationDomain.MigrationStatusCommitted
		if err := mig.migrationRepo.UpdateStatus(ctx, migration); err != nil {
			mig.logger.Error("failed to update migration status", slog.Any("error", err))
		}
		return
	}

	plaintext, err := mig.stage(ctx, migration, profile, target, targetPublicKey)
	if err != nil {
		mig.failRecord(ctx, migration, report, fmt.Sprintf("stage: %v", err))
		return
	}
	defer cryptoDomain.Zero(plaintext)

	if err := mig.verify(ctx, migration, target, plaintext); err != nil {
		mig.failRecord(ctx, migration, report, fmt.Sprintf("verify: %v", err))
		return
	}

	if err := mig.commit(ctx, migration, profile); err != nil {
		mig.failRecord(ctx, migration, report, fmt.Sprintf("commit: %v", err))
		return
	}

	report.Committed.Add(1)
	mig.metrics.RecordOperation(ctx, "rotation", "record_migrate", "success")
}

// stage decrypts the record under its old version and writes the re-encrypted
// representation to the staging table. Transient failures (database hiccups)
// are retried with exponential backoff; a record that no active key can
// decrypt fails permanently.
func (mig *Migrator) stage(
	ctx context.Context,
	migration *rotationDomain.RecordMigration,
	profile *profileDomain.Profile,
	target *keyringDomain.KeyPair,
	targetPublicKey *rsa.PublicKey,
) ([]byte, error) {
	var plaintext []byte
	operation := func() error {
		pt, _, err := mig.decryptor.ResolveRecord(ctx, profile)
		if err != nil {
			if apperrors.Is(err, resolver.ErrDecryptionExhausted) {
				return backoff.Permanent(err)
			}
			return err
		}
		plaintext = pt
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), mig.config.StageMaxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	key, nonce, ciphertext, err := mig.codec.EncryptBytes(plaintext)
	if err != nil {
		cryptoDomain.Zero(plaintext)
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	wrappedKey, err := mig.wrapper.Wrap(key, targetPublicKey)
	if err != nil {
		cryptoDomain.Zero(plaintext)
		return nil, err
	}

	migration.StagedWrappedKey = wrappedKey
	migration.StagedNonce = nonce
	migration.StagedCiphertext = ciphertext
	migration.StagedBlindIndex = profileDomain.BlindIndex(target.IndexKey, string(plaintext))
	migration.Status = rotationDomain.MigrationStatusStaged

	if err := mig.migrationRepo.UpdateStage(ctx, migration); err != nil {
		cryptoDomain.Zero(plaintext)
		return nil, err
	}

	return plaintext, nil
}

// verify proves the staged data round-trips before the live record is
// touched: unwrap with the target private key, decrypt, compare plaintexts
// and recompute the blind index.
func (mig *Migrator) verify(
	ctx context.Context,
	migration *rotationDomain.RecordMigration,
	target *keyringDomain.KeyPair,
	plaintext []byte,
) error {
	key, err := mig.wrapper.Unwrap(migration.StagedWrappedKey, target.PrivateKey)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(key)

	decrypted, err := mig.codec.DecryptBytes(key, migration.StagedNonce, migration.StagedCiphertext)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(decrypted)

	if !bytes.Equal(decrypted, plaintext) {
		return rotationDomain.ErrVerificationFailed
	}

	expectedIndex := profileDomain.BlindIndex(target.IndexKey, string(decrypted))
	if !hmac.Equal(expectedIndex, migration.StagedBlindIndex) {
		return rotationDomain.ErrVerificationFailed
	}

	migration.Status = rotationDomain.MigrationStatusVerified
	return mig.migrationRepo.UpdateStatus(ctx, migration)
}

// commit swaps the live record to the staged representation in one guarded
// UPDATE, transactionally with the migration status and the audit event.
func (mig *Migrator) commit(
	ctx context.Context,
	migration *rotationDomain.RecordMigration,
	profile *profileDomain.Profile,
) error {
	return mig.txManager.WithTx(ctx, func(ctx context.Context) error {
		updated := &profileDomain.Profile{
			ID:         profile.ID,
			KeyVersion: migration.ToVersion,
			WrappedKey: migration.StagedWrappedKey,
			Nonce:      migration.StagedNonce,
			Ciphertext: migration.StagedCiphertext,
			BlindIndex: migration.StagedBlindIndex,
			UpdatedAt:  time.Now().UTC(),
		}

		affected, err := mig.profiles.UpdateEncryption(ctx, updated, migration.FromVersion)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("record no longer at version %d", migration.FromVersion)
		}

		migration.Status = rotationDomain.MigrationStatusCommitted
		if err := mig.migrationRepo.UpdateStatus(ctx, migration); err != nil {
			return err
		}

		return mig.audit.Record(ctx, auditDomain.EventRecordMigrated, map[string]any{
			"record_id":    profile.ID.String(),
			"from_version": migration.FromVersion,
			"to_version":   migration.ToVersion,
		})
	})
}

// failRecord marks a migration failed without aborting the batch.
func (mig *Migrator) failRecord(
	ctx context.Context,
	migration *rotationDomain.RecordMigration,
	report *Report,
	reason string,
) {
	report.Failed.Add(1)
	mig.metrics.RecordOperation(ctx, "rotation", "record_migrate", "error")

	mig.logger.Error("record migration failed",
		slog.String("record_id", migration.ProfileID.String()),
		slog.Uint64("from_version", uint64(migration.FromVersion)),
		slog.Uint64("to_version", uint64(migration.ToVersion)),
		slog.String("reason", reason),
	)

	migration.Fail(reason)
	if err := mig.migrationRepo.UpdateStatus(ctx, migration); err != nil {
		mig.logger.Error("failed to persist migration failure", slog.Any("error", err))
	}
}
