package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTxManager runs the callback without a real transaction.
type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeAuditRepo is an in-memory AuditEventRepository.
type fakeAuditRepo struct {
	events []*auditDomain.AuditEvent
	err    error
}

func (f *fakeAuditRepo) Create(_ context.Context, event *auditDomain.AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditRepo) GetPendingEvents(_ context.Context, limit int) ([]*auditDomain.AuditEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var pending []*auditDomain.AuditEvent
	for _, event := range f.events {
		if event.Status == auditDomain.AuditEventStatusPending && len(pending) < limit {
			pending = append(pending, event)
		}
	}
	return pending, nil
}

func (f *fakeAuditRepo) Update(_ context.Context, event *auditDomain.AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	for i, existing := range f.events {
		if existing.ID == event.ID {
			f.events[i] = event
			return nil
		}
	}
	return nil
}

// fakeSink collects emitted events, optionally failing the first n emits.
type fakeSink struct {
	emitted   []*auditDomain.AuditEvent
	failFirst int
	calls     int
}

func (f *fakeSink) Emit(_ context.Context, event *auditDomain.AuditEvent) error {
	f.calls++
	if f.calls <= f.failFirst {
		return assert.AnError
	}
	f.emitted = append(f.emitted, event)
	return nil
}

func newTestAuditUseCase(repo AuditEventRepository, sink EventSink, maxRetries int) *AuditUseCase {
	return NewAuditUseCase(
		Config{Interval: time.Millisecond, BatchSize: 10, MaxRetries: maxRetries},
		&fakeTxManager{},
		repo,
		sink,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestAuditUseCase_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a pending event", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		useCase := newTestAuditUseCase(repo, &fakeSink{}, 3)

		err := useCase.Record(ctx, auditDomain.EventKeyPairRotated, map[string]any{"new_version": 2})
		require.NoError(t, err)

		require.Len(t, repo.events, 1)
		event := repo.events[0]
		assert.Equal(t, auditDomain.EventKeyPairRotated, event.Kind)
		assert.Equal(t, auditDomain.AuditEventStatusPending, event.Status)
		assert.JSONEq(t, `{"new_version":2}`, event.Payload)
	})

	t.Run("rejects unserializable payload", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		useCase := newTestAuditUseCase(repo, &fakeSink{}, 3)

		err := useCase.Record(ctx, auditDomain.EventKeyPairRotated, map[string]any{"fn": func() {}})
		assert.Error(t, err)
		assert.Empty(t, repo.events)
	})

	t.Run("propagates repository error", func(t *testing.T) {
		repo := &fakeAuditRepo{err: assert.AnError}
		useCase := newTestAuditUseCase(repo, &fakeSink{}, 3)

		err := useCase.Record(ctx, auditDomain.EventKeyPairRotated, map[string]any{})
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestAuditUseCase_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("emits pending events and marks them processed", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		sink := &fakeSink{}
		useCase := newTestAuditUseCase(repo, sink, 3)

		require.NoError(t, useCase.Record(ctx, auditDomain.EventKeyPairRotated, map[string]any{"new_version": 2}))
		require.NoError(t, useCase.Record(ctx, auditDomain.EventKeyPairRevoked, map[string]any{"version": 1}))

		processed, err := useCase.ProcessEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, processed)
		assert.Len(t, sink.emitted, 2)

		for _, event := range repo.events {
			assert.Equal(t, auditDomain.AuditEventStatusProcessed, event.Status)
			assert.NotNil(t, event.ProcessedAt)
		}
	})

	t.Run("no pending events", func(t *testing.T) {
		useCase := newTestAuditUseCase(&fakeAuditRepo{}, &fakeSink{}, 3)

		processed, err := useCase.ProcessEvents(ctx)
		require.NoError(t, err)
		assert.Zero(t, processed)
	})

	t.Run("sink failure increments retries", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		sink := &fakeSink{failFirst: 1}
		useCase := newTestAuditUseCase(repo, sink, 3)

		require.NoError(t, useCase.Record(ctx, auditDomain.EventKeyPairRotated, map[string]any{}))

		_, err := useCase.ProcessEvents(ctx)
		require.NoError(t, err)

		event := repo.events[0]
		assert.Equal(t, auditDomain.AuditEventStatusPending, event.Status)
		assert.Equal(t, 1, event.Retries)
		require.NotNil(t, event.LastError)
		assert.Equal(t, assert.AnError.Error(), *event.LastError)
	})

	t.Run("event fails permanently after max retries", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		sink := &fakeSink{failFirst: 100}
		useCase := newTestAuditUseCase(repo, sink, 2)

		require.NoError(t, useCase.Record(ctx, auditDomain.EventKeyPairRotated, map[string]any{}))

		for range 2 {
			_, err := useCase.ProcessEvents(ctx)
			require.NoError(t, err)
		}

		event := repo.events[0]
		assert.Equal(t, auditDomain.AuditEventStatusFailed, event.Status)
		assert.Equal(t, 2, event.Retries)

		// Failed events leave the pending set.
		processed, err := useCase.ProcessEvents(ctx)
		require.NoError(t, err)
		assert.Zero(t, processed)
	})
}

func TestAuditUseCase_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("drains multiple batches", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		sink := &fakeSink{}
		// Batch size 10, 15 events: two batches.
		useCase := NewAuditUseCase(
			Config{Interval: time.Millisecond, BatchSize: 10, MaxRetries: 3},
			&fakeTxManager{},
			repo,
			sink,
			slog.New(slog.NewTextHandler(io.Discard, nil)),
		)

		for i := range 15 {
			require.NoError(t, useCase.Record(ctx, auditDomain.EventRecordMigrated, map[string]any{"i": i}))
		}

		err := useCase.Drain(ctx)
		require.NoError(t, err)
		assert.Len(t, sink.emitted, 15)
	})

	t.Run("returns immediately with nothing pending", func(t *testing.T) {
		useCase := newTestAuditUseCase(&fakeAuditRepo{}, &fakeSink{}, 3)
		assert.NoError(t, useCase.Drain(context.Background()))
	})
}

func TestAuditUseCase_Start(t *testing.T) {
	t.Run("processes on ticks and stops on cancel", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		sink := &fakeSink{}
		useCase := newTestAuditUseCase(repo, sink, 3)

		require.NoError(t, useCase.Record(context.Background(), auditDomain.EventKeyPairRotated, map[string]any{}))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := useCase.Start(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotEmpty(t, sink.emitted)
	})
}

func TestLogSink_Emit(t *testing.T) {
	t.Run("emits a structured entry", func(t *testing.T) {
		sink := NewLogSink(slog.New(slog.NewTextHandler(io.Discard, nil)))

		event, err := auditDomain.NewAuditEvent(
			auditDomain.EventMigrationCompleted,
			map[string]any{"from_version": 1, "to_version": 2},
		)
		require.NoError(t, err)

		assert.NoError(t, sink.Emit(context.Background(), event))
	})

	t.Run("rejects invalid payload json", func(t *testing.T) {
		sink := NewLogSink(slog.New(slog.NewTextHandler(io.Discard, nil)))

		event := &auditDomain.AuditEvent{Payload: "{broken"}
		assert.Error(t, sink.Emit(context.Background(), event))
	})
}
