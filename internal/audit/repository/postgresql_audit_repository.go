// Package repository provides audit event persistence for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	"github.com/allisson/pii-vault/internal/database"
	apperrors "github.com/allisson/pii-vault/internal/errors"
)

// PostgreSQLAuditEventRepository handles audit event persistence for PostgreSQL.
type PostgreSQLAuditEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditEventRepository creates a new PostgreSQL audit event repository.
func NewPostgreSQLAuditEventRepository(db *sql.DB) *PostgreSQLAuditEventRepository {
	return &PostgreSQLAuditEventRepository{db: db}
}

// Create inserts a new audit event.
func (r *PostgreSQLAuditEventRepository) Create(ctx context.Context, event *auditDomain.AuditEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO audit_events (id, kind, payload, status, retries, last_error, processed_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, event.ID, event.Kind, event.Payload, event.Status,
		event.Retries, event.LastError, event.ProcessedAt, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit event")
	}
	return nil
}

// GetPendingEvents retrieves pending events, skipping rows locked by
// concurrent processors.
func (r *PostgreSQLAuditEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*auditDomain.AuditEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, kind, payload, status, retries, last_error, processed_at, created_at, updated_at
			  FROM audit_events
			  WHERE status = $1
			  ORDER BY created_at ASC
			  LIMIT $2
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, auditDomain.AuditEventStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending audit events")
	}
	defer rows.Close()

	return scanAuditEvents(rows)
}

// Update updates an audit event's processing state.
func (r *PostgreSQLAuditEventRepository) Update(ctx context.Context, event *auditDomain.AuditEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE audit_events
			  SET status = $1, retries = $2, last_error = $3, processed_at = $4, updated_at = NOW()
			  WHERE id = $5`

	_, err := querier.ExecContext(ctx, query, event.Status, event.Retries, event.LastError,
		event.ProcessedAt, event.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update audit event")
	}
	return nil
}

// scanAuditEvents drains a result set into audit events.
func scanAuditEvents(rows *sql.Rows) ([]*auditDomain.AuditEvent, error) {
	var events []*auditDomain.AuditEvent
	for rows.Next() {
		event := &auditDomain.AuditEvent{}
		if err := rows.Scan(&event.ID, &event.Kind, &event.Payload, &event.Status,
			&event.Retries, &event.LastError, &event.ProcessedAt, &event.CreatedAt, &event.UpdatedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit event")
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit events")
	}
	return events, nil
}
