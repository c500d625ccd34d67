// Package commands contains CLI command implementations for the application.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/allisson/pii-vault/internal/app"
	auditUseCase "github.com/allisson/pii-vault/internal/audit/usecase"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// closeMigrate closes the migration instance and logs any errors.
func closeMigrate(migrate *migrate.Migrate, logger *slog.Logger) {
	sourceError, databaseError := migrate.Close()
	if sourceError != nil || databaseError != nil {
		logger.Error(
			"failed to close the migrate",
			slog.Any("source_error", sourceError),
			slog.Any("database_error", databaseError),
		)
	}
}

// recordAndDrain records one audit event and drains pending events before the
// CLI process exits. Failures are logged, never fatal: the key operation
// already committed.
func recordAndDrain(
	ctx context.Context,
	audit *auditUseCase.AuditUseCase,
	logger *slog.Logger,
	kind string,
	payload any,
) {
	if err := audit.Record(ctx, kind, payload); err != nil {
		logger.Error("failed to record audit event",
			slog.String("kind", kind),
			slog.Any("error", err),
		)
		return
	}
	if err := audit.Drain(ctx); err != nil {
		logger.Error("failed to drain audit events", slog.Any("error", err))
	}
}
