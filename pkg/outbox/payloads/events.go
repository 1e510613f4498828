package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// InvoiceCreatedEvent announces a newly issued ledger document.
type InvoiceCreatedEvent struct {
	InvoiceID     uuid.UUID           `json:"invoice_id"`
	InvoiceNumber string              `json:"invoice_number"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	Status        enums.InvoiceStatus `json:"status"`
	TaxModel      enums.TaxModel      `json:"tax_model"`
	Total         decimal.Decimal     `json:"total"`
	Fingerprint   string              `json:"fingerprint"`
	ReversalOfID  *uuid.UUID          `json:"reversal_of_id,omitempty"`
}

// InvoiceStatusChangedEvent mirrors one status log row.
type InvoiceStatusChangedEvent struct {
	InvoiceID     uuid.UUID            `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	OldStatus     *enums.InvoiceStatus `json:"old_status,omitempty"`
	NewStatus     enums.InvoiceStatus  `json:"new_status"`
	Reason        string               `json:"reason,omitempty"`
	ChangedAt     time.Time            `json:"changed_at"`
}

// InvoiceReversedEvent links an original document to its storno.
type InvoiceReversedEvent struct {
	OriginalID     uuid.UUID       `json:"original_id"`
	OriginalNumber string          `json:"original_number"`
	ReversalID     uuid.UUID       `json:"reversal_id"`
	ReversalNumber string          `json:"reversal_number"`
	Total          decimal.Decimal `json:"total"`
	Reason         string          `json:"reason,omitempty"`
}

// InvoiceDeletedEvent is emitted when a draft is removed.
type InvoiceDeletedEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
}

// InvoiceTamperedEvent reports a fingerprint mismatch found on verification.
type InvoiceTamperedEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Stored        string    `json:"stored"`
	Computed      string    `json:"computed"`
	DetectedAt    time.Time `json:"detected_at"`
}

// InvoiceArchivedEvent records a rendered document hash.
type InvoiceArchivedEvent struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Filename  string    `json:"filename"`
	PdfHash   string    `json:"pdf_hash"`
	FileSize  int64     `json:"file_size"`
}

// PaymentCheckedEvent carries the outcome of one reconciliation attempt.
type PaymentCheckedEvent struct {
	CheckID        uuid.UUID                `json:"check_id"`
	InvoiceNumber  string                   `json:"invoice_number"`
	InvoiceID      *uuid.UUID               `json:"invoice_id,omitempty"`
	AmountReceived decimal.Decimal          `json:"amount_received"`
	Difference     *decimal.Decimal         `json:"difference,omitempty"`
	Status         enums.PaymentCheckStatus `json:"status"`
}

// PaymentResolvedEvent closes a check that needed manual review.
type PaymentResolvedEvent struct {
	CheckID   uuid.UUID                  `json:"check_id"`
	InvoiceID *uuid.UUID                 `json:"invoice_id,omitempty"`
	Action    enums.PaymentResolveAction `json:"action"`
}

// DeliveryNoteCreatedEvent announces goods moved into consignment.
type DeliveryNoteCreatedEvent struct {
	DeliveryNoteID     uuid.UUID       `json:"delivery_note_id"`
	DeliveryNoteNumber string          `json:"delivery_note_number"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	ItemCount          int             `json:"item_count"`
	Total              decimal.Decimal `json:"total"`
}

// ReminderCreatedEvent announces a dunning notice.
type ReminderCreatedEvent struct {
	ReminderID     uuid.UUID       `json:"reminder_id"`
	ReminderNumber string          `json:"reminder_number"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	Level          int             `json:"level"`
	Fee            decimal.Decimal `json:"fee"`
}

// StockAdjustedEvent reports a manual primary stock change.
type StockAdjustedEvent struct {
	AdjustmentID   uuid.UUID                 `json:"adjustment_id"`
	ProductID      uuid.UUID                 `json:"product_id"`
	AdjustmentType enums.StockAdjustmentType `json:"adjustment_type"`
	Quantity       int                       `json:"quantity"`
	OldStock       int                       `json:"old_stock"`
	NewStock       int                       `json:"new_stock"`
	DocumentNumber *string                   `json:"document_number,omitempty"`
}
