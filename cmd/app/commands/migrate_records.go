package commands

import (
	"context"
	"fmt"
	"log/slog"

	auditUseCase "github.com/allisson/pii-vault/internal/audit/usecase"
	rotationUseCase "github.com/allisson/pii-vault/internal/rotation/usecase"
)

// RunMigrateRecords re-encrypts every record at fromVersion to the current
// key version. Safe to interrupt and restart: committed records stay
// committed and a later run claims exactly the records still at fromVersion.
func RunMigrateRecords(
	ctx context.Context,
	migrator *rotationUseCase.Migrator,
	audit *auditUseCase.AuditUseCase,
	logger *slog.Logger,
	fromVersion uint,
) error {
	logger.Info("starting record migration", slog.Uint64("from_version", uint64(fromVersion)))

	report, err := migrator.Run(ctx, fromVersion)
	if err != nil {
		return fmt.Errorf("record migration failed: %w", err)
	}

	// The migrator records per-record and completion audit events inside its
	// transactions; drain them since no background processor runs here.
	if err := audit.Drain(ctx); err != nil {
		logger.Error("failed to drain audit events", slog.Any("error", err))
	}

	logger.Info("record migration finished",
		slog.Uint64("from_version", uint64(report.FromVersion)),
		slog.Uint64("to_version", uint64(report.ToVersion)),
		slog.Int64("committed", report.Committed.Load()),
		slog.Int64("failed", report.Failed.Load()),
	)

	if failed := report.Failed.Load(); failed > 0 {
		return fmt.Errorf("%d records failed to migrate; inspect record_migrations and rerun", failed)
	}

	return nil
}
