package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// Invoice is a ledger document. Financial columns and the fingerprint are
// fixed at creation; only status, notes, payment method and timestamps move
// afterwards.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceNumber string              `gorm:"column:invoice_number;not null;uniqueIndex"`
	CustomerID    uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	InvoiceDate   time.Time           `gorm:"column:invoice_date;type:date;not null"`
	DueDate       *time.Time          `gorm:"column:due_date;type:date"`
	Status        enums.InvoiceStatus `gorm:"column:status;not null;default:draft"`
	Subtotal      decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxRate       decimal.Decimal     `gorm:"column:tax_rate;type:numeric(5,2);not null"`
	TaxAmount     decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	Total         decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	TaxModel      enums.TaxModel      `gorm:"column:tax_model;not null;default:standard"`
	CustomerType  enums.CustomerType  `gorm:"column:customer_type;not null;default:endkunde"`
	Notes         *string             `gorm:"column:notes"`
	PaymentMethod *string             `gorm:"column:payment_method"`
	Fingerprint   string              `gorm:"column:fingerprint;size:64;not null"`
	ReversalOfID  *uuid.UUID          `gorm:"column:reversal_of_id;type:uuid"`
	LineItems     []LineItem          `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsReversal reports whether the invoice cancels another document.
func (i Invoice) IsReversal() bool {
	return i.ReversalOfID != nil
}

// LineItem is one position of an invoice.
type LineItem struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID   uuid.UUID           `gorm:"column:invoice_id;type:uuid;not null;index"`
	Position    int                 `gorm:"column:position;not null;default:0"`
	ProductID   *uuid.UUID          `gorm:"column:product_id;type:uuid"`
	Description string              `gorm:"column:description;not null"`
	Quantity    decimal.Decimal     `gorm:"column:quantity;type:numeric(10,2);not null"`
	UnitPrice   decimal.Decimal     `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Total       decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	TaxRate     decimal.NullDecimal `gorm:"column:tax_rate;type:numeric(5,2)"`
	StockPool   enums.StockPool     `gorm:"column:stock_pool;not null;default:none"`
}

// InvoiceStatusLog is an append-only audit row for every status change.
type InvoiceStatusLog struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID uuid.UUID            `gorm:"column:invoice_id;type:uuid;not null;index"`
	OldStatus *enums.InvoiceStatus `gorm:"column:old_status"`
	NewStatus enums.InvoiceStatus  `gorm:"column:new_status;not null"`
	ChangedAt time.Time            `gorm:"column:changed_at;not null"`
	ChangedBy string               `gorm:"column:changed_by;not null"`
	Reason    *string              `gorm:"column:reason"`
}

func (InvoiceStatusLog) TableName() string {
	return "invoice_status_log"
}

// InvoicePdfArchive records the hash of a rendered document, write-once per filename.
type InvoicePdfArchive struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID   uuid.UUID `gorm:"column:invoice_id;type:uuid;not null"`
	PdfFilename string    `gorm:"column:pdf_filename;not null"`
	PdfHash     string    `gorm:"column:pdf_hash;size:64;not null"`
	FileSize    int64     `gorm:"column:file_size;not null"`
	ArchivedBy  string    `gorm:"column:archived_by;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (InvoicePdfArchive) TableName() string {
	return "invoice_pdf_archive"
}
