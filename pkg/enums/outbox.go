package enums

import "fmt"

// OutboxAggregateType names the ledger aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateInvoice         OutboxAggregateType = "invoice"
	AggregatePaymentCheck    OutboxAggregateType = "payment_check"
	AggregateDeliveryNote    OutboxAggregateType = "delivery_note"
	AggregateReminder        OutboxAggregateType = "reminder"
	AggregateStockAdjustment OutboxAggregateType = "stock_adjustment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateInvoice,
	AggregatePaymentCheck,
	AggregateDeliveryNote,
	AggregateReminder,
	AggregateStockAdjustment,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a ledger fact published to downstream consumers.
type OutboxEventType string

const (
	EventInvoiceCreated       OutboxEventType = "invoice.created"
	EventInvoiceStatusChanged OutboxEventType = "invoice.status_changed"
	EventInvoiceReversed      OutboxEventType = "invoice.reversed"
	EventInvoiceDeleted       OutboxEventType = "invoice.deleted"
	EventInvoiceTampered      OutboxEventType = "invoice.tamper_detected"
	EventInvoiceArchived      OutboxEventType = "invoice.archived"
	EventPaymentChecked       OutboxEventType = "payment.checked"
	EventPaymentResolved      OutboxEventType = "payment.resolved"
	EventDeliveryNoteCreated  OutboxEventType = "delivery_note.created"
	EventReminderCreated      OutboxEventType = "reminder.created"
	EventStockAdjusted        OutboxEventType = "stock.adjusted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventInvoiceCreated,
	EventInvoiceStatusChanged,
	EventInvoiceReversed,
	EventInvoiceDeleted,
	EventInvoiceTampered,
	EventInvoiceArchived,
	EventPaymentChecked,
	EventPaymentResolved,
	EventDeliveryNoteCreated,
	EventReminderCreated,
	EventStockAdjusted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
