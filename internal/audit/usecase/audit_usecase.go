// Package usecase implements the audit trail business logic.
//
// Recording follows the transactional outbox pattern: the event row commits
// in the same transaction as the change it describes, and a background
// processor drains pending rows to the structured audit log.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	"github.com/allisson/pii-vault/internal/database"
)

// Config holds audit processor configuration.
type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// AuditEventRepository defines audit event persistence operations.
type AuditEventRepository interface {
	Create(ctx context.Context, event *auditDomain.AuditEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*auditDomain.AuditEvent, error)
	Update(ctx context.Context, event *auditDomain.AuditEvent) error
}

// EventSink receives processed audit events. The default sink writes them to
// the structured audit log; alternative sinks can forward to a SIEM.
type EventSink interface {
	Emit(ctx context.Context, event *auditDomain.AuditEvent) error
}

// Recorder is the write side of the audit trail, implemented by AuditUseCase.
// Callers record events inside their own transactions.
type Recorder interface {
	Record(ctx context.Context, kind string, payload any) error
}

// AuditUseCase records audit events and drains pending events to the sink.
type AuditUseCase struct {
	config    Config
	txManager database.TxManager
	auditRepo AuditEventRepository
	sink      EventSink
	logger    *slog.Logger
}

// NewAuditUseCase creates a new audit use case.
func NewAuditUseCase(
	config Config,
	txManager database.TxManager,
	auditRepo AuditEventRepository,
	sink EventSink,
	logger *slog.Logger,
) *AuditUseCase {
	return &AuditUseCase{
		config:    config,
		txManager: txManager,
		auditRepo: auditRepo,
		sink:      sink,
		logger:    logger,
	}
}

// Record persists a pending audit event. Joins the caller's transaction when
// the context carries one, so the event commits atomically with the change.
func (uc *AuditUseCase) Record(ctx context.Context, kind string, payload any) error {
	event, err := auditDomain.NewAuditEvent(kind, payload)
	if err != nil {
		return err
	}
	return uc.auditRepo.Create(ctx, event)
}

// Start runs the audit event processing loop until the context is canceled.
func (uc *AuditUseCase) Start(ctx context.Context) error {
	uc.logger.Info("starting audit event processor",
		slog.Duration("interval", uc.config.Interval),
		slog.Int("batch_size", uc.config.BatchSize),
	)

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("stopping audit event processor")
			return ctx.Err()
		case <-ticker.C:
			if _, err := uc.ProcessEvents(ctx); err != nil {
				uc.logger.Error("failed to process audit events", slog.Any("error", err))
			}
		}
	}
}

// Drain processes batches until no pending events remain. Used by CLI
// commands that record events without a background processor running.
func (uc *AuditUseCase) Drain(ctx context.Context) error {
	for {
		processed, err := uc.ProcessEvents(ctx)
		if err != nil {
			return err
		}
		if processed == 0 {
			return nil
		}
	}
}

// ProcessEvents drains one batch of pending events inside a transaction and
// returns the number of events handled. Row locks from SKIP LOCKED make
// concurrent processors safe.
func (uc *AuditUseCase) ProcessEvents(ctx context.Context) (int, error) {
	var processed int
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.auditRepo.GetPendingEvents(ctx, uc.config.BatchSize)
		if err != nil {
			return err
		}

		processed = len(events)
		if len(events) == 0 {
			return nil
		}

		for _, event := range events {
			if err := uc.sink.Emit(ctx, event); err != nil {
				uc.logger.Error("failed to emit audit event",
					slog.String("event_id", event.ID.String()),
					slog.String("kind", event.Kind),
					slog.Any("error", err),
				)

				event.Retries++
				errorMsg := err.Error()
				event.LastError = &errorMsg

				if event.Retries >= uc.config.MaxRetries {
					event.Status = auditDomain.AuditEventStatusFailed
				}

				if err := uc.auditRepo.Update(ctx, event); err != nil {
					return err
				}
				continue
			}

			now := time.Now().UTC()
			event.Status = auditDomain.AuditEventStatusProcessed
			event.ProcessedAt = &now

			if err := uc.auditRepo.Update(ctx, event); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit writes one audit event as a structured log entry.
func (s *LogSink) Emit(ctx context.Context, event *auditDomain.AuditEvent) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "audit",
		slog.String("event_id", event.ID.String()),
		slog.String("kind", event.Kind),
		slog.Time("recorded_at", event.CreatedAt),
		slog.Any("payload", payload),
	)
	return nil
}
