package repository

import (
	"context"
	"database/sql"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	"github.com/allisson/pii-vault/internal/database"
	apperrors "github.com/allisson/pii-vault/internal/errors"
)

// MySQLAuditEventRepository handles audit event persistence for MySQL.
type MySQLAuditEventRepository struct {
	db *sql.DB
}

// NewMySQLAuditEventRepository creates a new MySQL audit event repository.
func NewMySQLAuditEventRepository(db *sql.DB) *MySQLAuditEventRepository {
	return &MySQLAuditEventRepository{db: db}
}

// Create inserts a new audit event.
func (r *MySQLAuditEventRepository) Create(ctx context.Context, event *auditDomain.AuditEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO audit_events (id, kind, payload, status, retries, last_error, processed_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, event.ID, event.Kind, event.Payload, event.Status,
		event.Retries, event.LastError, event.ProcessedAt, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit event")
	}
	return nil
}

// GetPendingEvents retrieves pending events, skipping rows locked by
// concurrent processors.
func (r *MySQLAuditEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*auditDomain.AuditEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, kind, payload, status, retries, last_error, processed_at, created_at, updated_at
			  FROM audit_events
			  WHERE status = ?
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, auditDomain.AuditEventStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending audit events")
	}
	defer rows.Close()

	return scanAuditEvents(rows)
}

// Update updates an audit event's processing state.
func (r *MySQLAuditEventRepository) Update(ctx context.Context, event *auditDomain.AuditEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE audit_events
			  SET status = ?, retries = ?, last_error = ?, processed_at = ?, updated_at = NOW()
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, event.Status, event.Retries, event.LastError,
		event.ProcessedAt, event.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update audit event")
	}
	return nil
}
