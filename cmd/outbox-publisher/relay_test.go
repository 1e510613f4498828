package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/registry"
)

func TestDrainPublishesAggregateInOrder(t *testing.T) {
	invoiceID := uuid.New()
	created := invoiceEvent(t, invoiceID, enums.EventInvoiceCreated, payloads.InvoiceCreatedEvent{InvoiceID: invoiceID, InvoiceNumber: "RE-20260105-0001"})
	sent := invoiceEvent(t, invoiceID, enums.EventInvoiceStatusChanged, payloads.InvoiceStatusChangedEvent{InvoiceID: invoiceID, NewStatus: enums.InvoiceStatusSent})
	store := &fakeStore{events: []models.OutboxEvent{created, sent}}
	pub := newFakePublisher()
	r := newTestRelay(t, store, &fakeDeadLetters{}, pub, 5)

	report, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchReport{Claimed: 2, Published: 2}, report)
	assert.Equal(t, []uuid.UUID{created.ID, sent.ID}, store.published)

	require.Len(t, pub.sent, 2)
	for _, msg := range pub.sent {
		assert.Equal(t, "invoice:"+invoiceID.String(), msg.OrderingKey)
	}
	assert.Equal(t, "invoice.created", pub.sent[0].Attributes["event_type"])
	assert.Equal(t, "invoice.status_changed", pub.sent[1].Attributes["event_type"])
}

func TestDrainDefersAggregateAfterFailure(t *testing.T) {
	failingID, otherID := uuid.New(), uuid.New()
	first := invoiceEvent(t, failingID, enums.EventInvoiceCreated, payloads.InvoiceCreatedEvent{InvoiceID: failingID})
	other := invoiceEvent(t, otherID, enums.EventInvoiceCreated, payloads.InvoiceCreatedEvent{InvoiceID: otherID})
	second := invoiceEvent(t, failingID, enums.EventInvoiceStatusChanged, payloads.InvoiceStatusChangedEvent{InvoiceID: failingID, NewStatus: enums.InvoiceStatusSent})

	store := &fakeStore{events: []models.OutboxEvent{first, other, second}}
	pub := newFakePublisher()
	failingKey := "invoice:" + failingID.String()
	pub.failures[failingKey] = errors.New("unavailable")
	r := newTestRelay(t, store, &fakeDeadLetters{}, pub, 5)

	report, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchReport{Claimed: 3, Published: 1, Retried: 1, Deferred: 1}, report)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{other.ID}, store.published)
	assert.Equal(t, []string{failingKey}, pub.resumed)
}

func TestDrainDeadLettersUnresolvableRow(t *testing.T) {
	event := invoiceEvent(t, uuid.New(), enums.EventInvoiceCreated, payloads.InvoiceCreatedEvent{})
	event.EventType = "invoice.exploded"
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDeadLetters{}
	pub := newFakePublisher()
	r := newTestRelay(t, store, dlq, pub, 5)

	report, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeadLettered)
	assert.Empty(t, pub.sent)

	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))
	assert.Equal(t, time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC), entry.FailedAt)
	assert.Equal(t, []uuid.UUID{event.ID}, store.terminal)
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	invoiceID := uuid.New()
	event := invoiceEvent(t, invoiceID, enums.EventInvoiceCreated, payloads.InvoiceCreatedEvent{InvoiceID: invoiceID})
	event.AttemptCount = 4
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDeadLetters{}
	pub := newFakePublisher()
	pub.failures["invoice:"+invoiceID.String()] = errors.New("deadline exceeded")
	r := newTestRelay(t, store, dlq, pub, 5)

	report, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchReport{Claimed: 1, DeadLettered: 1}, report)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	assert.Contains(t, *dlq.entries[0].ErrorMessage, "deadline exceeded")
	assert.Empty(t, store.failed)
}

func TestDrainDeadLettersWithoutPublisher(t *testing.T) {
	event := invoiceEvent(t, uuid.New(), enums.EventInvoiceCreated, payloads.InvoiceCreatedEvent{})
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDeadLetters{}
	r := newTestRelay(t, store, dlq, nil, 5)

	_, err := r.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	r := newTestRelay(t, &fakeStore{}, &fakeDeadLetters{}, newFakePublisher(), 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestPollBackoff(t *testing.T) {
	b := pollBackoff{base: time.Second, max: 5 * time.Second}

	first := b.fail()
	assert.GreaterOrEqual(t, first, 2*time.Second)
	assert.Less(t, first, 2*time.Second+pollJitter)
	b.fail()
	b.fail()
	assert.Equal(t, 5*time.Second, b.current)

	idle := b.idle()
	assert.Equal(t, time.Second, b.current)
	assert.Less(t, idle, time.Second+pollJitter)
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := newRelay(relayParams{Logger: logger.Nop()})
	require.EqualError(t, err, "database client is required")
}

func newTestRelay(t *testing.T, store *fakeStore, dlq *fakeDeadLetters, pub *fakePublisher, maxAttempts int) *relay {
	t.Helper()
	events, err := registry.New(config.PubSubConfig{LedgerTopic: "ledger-events"})
	require.NoError(t, err)

	r, err := newRelay(relayParams{
		Config:      config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: maxAttempts},
		Logger:      logger.Nop(),
		DB:          fakeDB{},
		Broker:      fakeDB{},
		Store:       store,
		DeadLetters: dlq,
		Resolver:    events,
		Publishers: func(string) topicPublisher {
			if pub == nil {
				return nil
			}
			return pub
		},
	})
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, 1, 6, 13, 0, 0, 0, time.FixedZone("CET", 3600)) }
	return r
}

func invoiceEvent(t *testing.T, invoiceID uuid.UUID, eventType enums.OutboxEventType, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{Name: "Anna"},
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoiceID,
		Payload:       payload,
	}
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeStore struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeStore) FetchUnpublishedForPublish(_ *gorm.DB, _, _ int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDeadLetters struct {
	entries []models.OutboxDLQ
}

func (f *fakeDeadLetters) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakePublisher struct {
	failures map[string]error
	sent     []*gcppubsub.Message
	resumed  []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failures: map[string]error{}}
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	if err, ok := f.failures[msg.OrderingKey]; ok {
		return fakeResult{err: err}
	}
	f.sent = append(f.sent, msg)
	return fakeResult{id: "msg-" + msg.Attributes["event_id"]}
}

func (f *fakePublisher) ResumePublish(orderingKey string) {
	f.resumed = append(f.resumed, orderingKey)
}

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	return r.id, r.err
}
