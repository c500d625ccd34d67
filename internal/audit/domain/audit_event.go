// Package domain defines the audit trail domain entities.
//
// Audit events are written transactionally next to the state change they
// describe and drained to the audit sink by a background processor, so an
// event is never lost to a crash between the write and the emit. Payloads
// carry identifiers and key versions only, never plaintext PII.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEventStatus represents the processing status of an audit event.
type AuditEventStatus string

const (
	AuditEventStatusPending   AuditEventStatus = "pending"
	AuditEventStatusProcessed AuditEventStatus = "processed"
	AuditEventStatusFailed    AuditEventStatus = "failed"
)

// Audit event kinds.
const (
	// EventKeyPairRotated records a successful key pair rotation.
	EventKeyPairRotated = "keypair.rotated"

	// EventKeyPairRevoked records a key pair being removed from the decryption set.
	EventKeyPairRevoked = "keypair.revoked"

	// EventKeyPairDestroyed records permanent key pair deletion.
	EventKeyPairDestroyed = "keypair.destroyed"

	// EventStaleDecryption records a record decrypted with a key version other
	// than the one it is tagged with. A burst of these means a migration is
	// lagging or a commit was lost.
	EventStaleDecryption = "record.stale_decryption"

	// EventRecordMigrated records one record re-encrypted to a new key version.
	EventRecordMigrated = "record.migrated"

	// EventMigrationCompleted records a full migration run finishing.
	EventMigrationCompleted = "migration.completed"
)

// AuditEvent represents one entry in the transactional audit trail.
type AuditEvent struct {
	ID          uuid.UUID
	Kind        string
	Payload     string // JSON document, identifiers and versions only
	Status      AuditEventStatus
	Retries     int
	LastError   *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewAuditEvent creates a pending audit event with a JSON-serialized payload.
func NewAuditEvent(kind string, payload any) (*AuditEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &AuditEvent{
		ID:        id,
		Kind:      kind,
		Payload:   string(data),
		Status:    AuditEventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
