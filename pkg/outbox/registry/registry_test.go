package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
)

func TestResolveStornoEvent(t *testing.T) {
	reg := newRegistry(t, config.PubSubConfig{LedgerTopic: "ledger-events"})

	invoiceID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventInvoiceReversed,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoiceID,
		Payload: envelopeFor(t, 1, payloads.InvoiceReversedEvent{
			OriginalID:     invoiceID,
			OriginalNumber: "RE-20260105-0001",
			ReversalID:     uuid.New(),
			ReversalNumber: "STORNO-20260106-0001",
			Total:          decimal.RequireFromString("-29.75"),
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "ledger-events", resolved.Descriptor.Topic)
	assert.Equal(t, "invoice:"+invoiceID.String(), resolved.OrderingKey)
	assert.Equal(t, "invoice.reversed", resolved.Attributes["event_type"])
	assert.Equal(t, "1", resolved.Attributes["envelope_version"])
	assert.Equal(t, "Anna", resolved.Attributes["actor"])

	payload, ok := resolved.Payload.(*payloads.InvoiceReversedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, "STORNO-20260106-0001", payload.ReversalNumber)
	assert.True(t, payload.Total.Equal(decimal.RequireFromString("-29.75")))
}

func TestTamperAlertsUseAlertTopic(t *testing.T) {
	reg := newRegistry(t, config.PubSubConfig{LedgerTopic: "ledger-events", AlertTopic: "ledger-alerts"})

	tampered, ok := reg.Lookup(enums.EventInvoiceTampered)
	require.True(t, ok)
	assert.Equal(t, "ledger-alerts", tampered.Topic)

	created, ok := reg.Lookup(enums.EventInvoiceCreated)
	require.True(t, ok)
	assert.Equal(t, "ledger-events", created.Topic)

	fallback := newRegistry(t, config.PubSubConfig{LedgerTopic: "ledger-events"})
	tampered, _ = fallback.Lookup(enums.EventInvoiceTampered)
	assert.Equal(t, "ledger-events", tampered.Topic)
}

func TestEveryEventTypeIsRegistered(t *testing.T) {
	reg := newRegistry(t, config.PubSubConfig{LedgerTopic: "ledger-events"})
	for _, eventType := range []enums.OutboxEventType{
		enums.EventInvoiceCreated,
		enums.EventInvoiceStatusChanged,
		enums.EventInvoiceReversed,
		enums.EventInvoiceDeleted,
		enums.EventInvoiceTampered,
		enums.EventInvoiceArchived,
		enums.EventPaymentChecked,
		enums.EventPaymentResolved,
		enums.EventDeliveryNoteCreated,
		enums.EventReminderCreated,
		enums.EventStockAdjusted,
	} {
		_, ok := reg.Lookup(eventType)
		assert.True(t, ok, "missing descriptor for %s", eventType)
	}
}

func TestNewRequiresLedgerTopic(t *testing.T) {
	_, err := New(config.PubSubConfig{AlertTopic: "ledger-alerts"})
	require.Error(t, err)
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	reg := newRegistry(t, config.PubSubConfig{LedgerTopic: "ledger-events"})
	invoice := func(payload json.RawMessage) models.OutboxEvent {
		return models.OutboxEvent{
			EventType:     enums.EventInvoiceCreated,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   uuid.New(),
			Payload:       payload,
		}
	}

	unknown := invoice(envelopeFor(t, 1, map[string]string{}))
	unknown.EventType = "invoice.exploded"
	mismatch := invoice(envelopeFor(t, 1, map[string]string{}))
	mismatch.EventType = enums.EventPaymentChecked
	noAggregate := invoice(envelopeFor(t, 1, map[string]string{}))
	noAggregate.AggregateID = uuid.Nil

	cases := map[string]models.OutboxEvent{
		"unknown event":        unknown,
		"aggregate mismatch":   mismatch,
		"missing aggregate id": noAggregate,
		"null payload":         invoice(envelopeFor(t, 1, nil)),
		"future envelope":      invoice(envelopeFor(t, MaxEnvelopeVersion+1, map[string]string{})),
		"broken envelope":      invoice(json.RawMessage(`{"data":`)),
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.Error(t, err)
			assert.True(t, IsPermanent(err), "expected permanent error, got %T", err)
		})
	}
}

func TestIsPermanentUnwraps(t *testing.T) {
	wrapped := errors.Join(errors.New("batch"), Permanent(errors.New("bad payload")))
	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsPermanent(errors.New("deadline exceeded")))
	assert.Equal(t, "permanent outbox error", PermanentError{}.Error())
}

func newRegistry(t *testing.T, cfg config.PubSubConfig) *Registry {
	t.Helper()
	reg, err := New(cfg)
	require.NoError(t, err)
	return reg
}

func envelopeFor(t *testing.T, version int, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{Name: "Anna", Role: "admin"},
		Data:       raw,
	})
	require.NoError(t, err)
	return envelope
}
