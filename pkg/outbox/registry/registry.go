// Package registry decodes outbox rows into typed ledger events and decides
// where and under which ordering key each one is published.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
)

// MaxEnvelopeVersion is the newest envelope layout this relay understands.
const MaxEnvelopeVersion = outbox.EnvelopeVersion

// Descriptor ties an event type to its aggregate, topic and payload schema.
type Descriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	alert      bool
	newPayload func() any
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) Descriptor {
	return Descriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		newPayload:    func() any { return new(T) },
	}
}

func (d Descriptor) asAlert() Descriptor {
	d.alert = true
	return d
}

var ledgerEvents = []Descriptor{
	describe[payloads.InvoiceCreatedEvent](enums.EventInvoiceCreated, enums.AggregateInvoice),
	describe[payloads.InvoiceStatusChangedEvent](enums.EventInvoiceStatusChanged, enums.AggregateInvoice),
	describe[payloads.InvoiceReversedEvent](enums.EventInvoiceReversed, enums.AggregateInvoice),
	describe[payloads.InvoiceDeletedEvent](enums.EventInvoiceDeleted, enums.AggregateInvoice),
	describe[payloads.InvoiceTamperedEvent](enums.EventInvoiceTampered, enums.AggregateInvoice).asAlert(),
	describe[payloads.InvoiceArchivedEvent](enums.EventInvoiceArchived, enums.AggregateInvoice),
	describe[payloads.PaymentCheckedEvent](enums.EventPaymentChecked, enums.AggregatePaymentCheck),
	describe[payloads.PaymentResolvedEvent](enums.EventPaymentResolved, enums.AggregatePaymentCheck),
	describe[payloads.DeliveryNoteCreatedEvent](enums.EventDeliveryNoteCreated, enums.AggregateDeliveryNote),
	describe[payloads.ReminderCreatedEvent](enums.EventReminderCreated, enums.AggregateReminder),
	describe[payloads.StockAdjustedEvent](enums.EventStockAdjusted, enums.AggregateStockAdjustment),
}

// Resolved is a decoded outbox row ready to hand to a publisher.
type Resolved struct {
	Descriptor  Descriptor
	Envelope    outbox.PayloadEnvelope
	Payload     any
	OrderingKey string
	Attributes  map[string]string
}

// Registry maps each ledger event type to its descriptor.
type Registry struct {
	byType map[enums.OutboxEventType]Descriptor
}

// New binds every ledger event to the configured topics.
func New(cfg config.PubSubConfig) (*Registry, error) {
	ledgerTopic := strings.TrimSpace(cfg.LedgerTopic)
	if ledgerTopic == "" {
		return nil, errors.New("ledger topic is required")
	}
	alertTopic := strings.TrimSpace(cfg.AlertTopic)
	if alertTopic == "" {
		alertTopic = ledgerTopic
	}

	reg := &Registry{byType: make(map[enums.OutboxEventType]Descriptor, len(ledgerEvents))}
	for _, desc := range ledgerEvents {
		desc.Topic = ledgerTopic
		if desc.alert {
			desc.Topic = alertTopic
		}
		reg.byType[desc.EventType] = desc
	}
	return reg, nil
}

// Lookup returns the descriptor registered for eventType.
func (r *Registry) Lookup(eventType enums.OutboxEventType) (Descriptor, bool) {
	desc, ok := r.byType[eventType]
	return desc, ok
}

// Resolve validates the row and decodes its typed payload. Every failure is
// permanent: retrying the same bytes cannot succeed.
func (r *Registry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	desc, ok := r.byType[event.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, Permanent(fmt.Errorf("event %s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version < 1 || envelope.Version > MaxEnvelopeVersion {
		return nil, Permanent(fmt.Errorf("unsupported envelope version %d", envelope.Version))
	}
	payload := desc.newPayload()
	if err := envelope.DecodeData(payload); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &Resolved{
		Descriptor:  desc,
		Envelope:    envelope,
		Payload:     payload,
		OrderingKey: OrderingKey(event),
		Attributes:  attributes(event, envelope),
	}, nil
}

// OrderingKey groups the events of one aggregate so subscribers see them in
// the order they were written.
func OrderingKey(event models.OutboxEvent) string {
	return string(event.AggregateType) + ":" + event.AggregateID.String()
}

func attributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":         envelope.EventID,
		"event_type":       string(event.EventType),
		"aggregate_type":   string(event.AggregateType),
		"aggregate_id":     event.AggregateID.String(),
		"envelope_version": strconv.Itoa(envelope.Version),
		"occurred_at":      envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if envelope.Actor != nil && envelope.Actor.Name != "" {
		attrs["actor"] = envelope.Actor.Name
	}
	return attrs
}

// PermanentError marks a row that must be dead-lettered instead of retried.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent outbox error"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	return PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var perm PermanentError
	return errors.As(err, &perm)
}
