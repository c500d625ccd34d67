package commands

import (
	"context"
	"fmt"
	"log/slog"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	auditUseCase "github.com/allisson/pii-vault/internal/audit/usecase"
	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	keyringUseCase "github.com/allisson/pii-vault/internal/keyring/usecase"
)

// RunRotateKeyPair generates a new current key pair version. The previous
// current version is retired in the same transaction and remains available
// for decryption until its records are migrated and it is revoked.
//
// Also used for initial setup: the first run creates version 1.
//
// Requirements: Database must be migrated, MASTER_KEYS and ACTIVE_MASTER_KEY_ID must be set.
func RunRotateKeyPair(
	ctx context.Context,
	useCase keyringUseCase.KeyringUseCase,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	audit *auditUseCase.AuditUseCase,
	logger *slog.Logger,
	bits int,
) error {
	logger.Info("rotating key pair",
		slog.Int("bits", bits),
		slog.String("active_master_key_id", masterKeyChain.ActiveMasterKeyID()),
	)

	newVersion, err := useCase.RegisterNewVersion(ctx, masterKeyChain, bits)
	if err != nil {
		return fmt.Errorf("failed to register new key pair version: %w", err)
	}

	recordAndDrain(ctx, audit, logger, auditDomain.EventKeyPairRotated, map[string]any{
		"new_version": newVersion,
	})

	logger.Info("key pair rotated successfully",
		slog.Uint64("new_version", uint64(newVersion)),
	)

	return nil
}
