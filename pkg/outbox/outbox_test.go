package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

func TestEmitWritesEnvelope(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, logger.Nop())
	invoiceID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventInvoiceCreated,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoiceID,
			Actor:         ActorFrom(types.Actor{Name: "anna", Role: enums.ActorRoleAdmin}),
			Data:          map[string]string{"invoice_number": "RE-20260105-0001"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, invoiceID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "anna", envelope.Actor.Name)
	assert.Equal(t, "admin", envelope.Actor.Role)
	assert.JSONEq(t, `{"invoice_number":"RE-20260105-0001"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	client := dbtest.NewSQLite(t)
	svc := NewService(NewRepository(client.DB()), nil)

	boom := errors.New("ledger write failed")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventInvoiceStatusChanged,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitValidates(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	client := dbtest.NewSQLite(t)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "nope", AggregateID: uuid.New()})
	})
	require.Error(t, err)
}

func TestEmitIfNotExistsSuppressesSecondEvent(t *testing.T) {
	client := dbtest.NewSQLite(t)
	svc := NewService(NewRepository(client.DB()), nil)
	event := DomainEvent{
		EventType:     enums.EventInvoiceTampered,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"stored": "a"},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryLifecycle(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	pending := seedEvent(t, client.DB(), 0)
	exhausted := seedEvent(t, client.DB(), 5)

	var claimed []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		claimed, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, claimed, 1)
	assert.Equal(t, pending.ID, claimed[0].ID)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.MarkFailedTx(tx, pending.ID, errors.New("unavailable"))
	}))
	reloaded := loadEvent(t, client.DB(), pending.ID)
	assert.Equal(t, 1, reloaded.AttemptCount)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "unavailable", *reloaded.LastError)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.MarkTerminalTx(tx, exhausted.ID, errors.New("bad payload"), 10)
	}))
	reloaded = loadEvent(t, client.DB(), exhausted.ID)
	assert.Equal(t, 10, reloaded.AttemptCount)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.MarkPublishedTx(tx, pending.ID)
	}))
	reloaded = loadEvent(t, client.DB(), pending.ID)
	require.NotNil(t, reloaded.PublishedAt)
	assert.Nil(t, reloaded.LastError)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted, "recently published rows are retained")

	deleted, err = repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining, "unpublished rows survive retention")
}

func TestFetchUnpublishedForPublishSkipsLockedRows(t *testing.T) {
	conn, mock := dbtest.NewMock(t)
	repo := NewRepository(conn)

	mock.ExpectQuery(`SELECT \* FROM "outbox_events" WHERE published_at IS NULL AND attempt_count < \$1 ORDER BY created_at ASC,id ASC LIMIT \$2 FOR UPDATE SKIP LOCKED`).
		WithArgs(10, 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "aggregate_type", "aggregate_id", "attempt_count"}).
			AddRow(uuid.NewString(), string(enums.EventInvoiceCreated), string(enums.AggregateInvoice), uuid.NewString(), 0))

	rows, err := repo.FetchUnpublishedForPublish(conn, 25, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQRepositoryTruncatesMessages(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := NewDLQRepository(client.DB())
	event := seedEvent(t, client.DB(), 3)

	long := make([]byte, maxLastErrorLen+100)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
			AttemptCount:  3,
			FailedAt:      time.Now().UTC(),
		})
	}))

	found, err := repo.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxLastErrorLen)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := repo.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	nonRetryable, err := repo.List(context.Background(), DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable})
	require.NoError(t, err)
	assert.Empty(t, nonRetryable)

	_, err = repo.List(context.Background(), DLQFilter{Reason: "exploded"})
	require.Error(t, err)
}

func TestDLQRequeueResetsOutboxRow(t *testing.T) {
	client := dbtest.NewSQLite(t)
	dlq := NewDLQRepository(client.DB())
	repo := NewRepository(client.DB())
	event := seedEvent(t, client.DB(), 10)

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := repo.MarkTerminalTx(tx, event.ID, errors.New("topic missing"), 10); err != nil {
			return err
		}
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			AttemptCount:  10,
			FailedAt:      time.Now().UTC(),
		})
	}))

	require.NoError(t, dlq.Requeue(context.Background(), event.ID))

	reloaded := loadEvent(t, client.DB(), event.ID)
	assert.Zero(t, reloaded.AttemptCount)
	assert.Nil(t, reloaded.LastError)
	found, err := dlq.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	require.ErrorIs(t, dlq.Requeue(context.Background(), event.ID), ErrNotDeadLettered)
}

func seedEvent(t *testing.T, conn *gorm.DB, attempts int) models.OutboxEvent {
	t.Helper()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoiceCreated,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":{}}`),
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&event).Error)
	return event
}

func loadEvent(t *testing.T, conn *gorm.DB, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var event models.OutboxEvent
	require.NoError(t, conn.First(&event, "id = ?", id).Error)
	return event
}
