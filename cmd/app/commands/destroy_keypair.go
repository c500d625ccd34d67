package commands

import (
	"context"
	"fmt"
	"log/slog"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	auditUseCase "github.com/allisson/pii-vault/internal/audit/usecase"
	keyringUseCase "github.com/allisson/pii-vault/internal/keyring/usecase"
)

// RunDestroyKeyPair permanently deletes a key pair version. Refused while any
// stored record still references the version: ciphertext under a destroyed
// key is irrecoverable.
func RunDestroyKeyPair(
	ctx context.Context,
	useCase keyringUseCase.KeyringUseCase,
	audit *auditUseCase.AuditUseCase,
	logger *slog.Logger,
	version uint,
) error {
	logger.Info("destroying key pair version", slog.Uint64("version", uint64(version)))

	if err := useCase.Destroy(ctx, version); err != nil {
		return fmt.Errorf("failed to destroy key pair version %d: %w", version, err)
	}

	recordAndDrain(ctx, audit, logger, auditDomain.EventKeyPairDestroyed, map[string]any{
		"version": version,
	})

	logger.Info("key pair version destroyed", slog.Uint64("version", uint64(version)))
	return nil
}
