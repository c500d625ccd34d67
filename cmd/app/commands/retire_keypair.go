package commands

import (
	"context"
	"fmt"
	"log/slog"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	auditUseCase "github.com/allisson/pii-vault/internal/audit/usecase"
	keyringUseCase "github.com/allisson/pii-vault/internal/keyring/usecase"
)

// RunRetireKeyPair revokes a retired key pair version, removing it from the
// decryption fallback set. Refused for the current version and for versions
// that still have records; run migrate-records first.
func RunRetireKeyPair(
	ctx context.Context,
	useCase keyringUseCase.KeyringUseCase,
	audit *auditUseCase.AuditUseCase,
	logger *slog.Logger,
	version uint,
) error {
	logger.Info("revoking key pair version", slog.Uint64("version", uint64(version)))

	if err := useCase.Retire(ctx, version); err != nil {
		return fmt.Errorf("failed to revoke key pair version %d: %w", version, err)
	}

	recordAndDrain(ctx, audit, logger, auditDomain.EventKeyPairRevoked, map[string]any{
		"version": version,
	})

	logger.Info("key pair version revoked", slog.Uint64("version", uint64(version)))
	return nil
}
