package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// PaymentCheck is the immutable outcome of one reconciliation attempt. Only
// the resolution columns are written after creation.
type PaymentCheck struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceNumber  string                   `gorm:"column:invoice_number;not null;index"`
	InvoiceID      *uuid.UUID               `gorm:"column:invoice_id;type:uuid"`
	AmountReceived decimal.Decimal          `gorm:"column:amount_received;type:numeric(12,2);not null"`
	ExpectedAmount decimal.NullDecimal      `gorm:"column:expected_amount;type:numeric(12,2)"`
	Difference     decimal.NullDecimal      `gorm:"column:difference;type:numeric(12,2)"`
	Status         enums.PaymentCheckStatus `gorm:"column:status;not null;index"`
	Reference      *string                  `gorm:"column:reference"`
	Notes          *string                  `gorm:"column:notes"`
	CheckedBy      string                   `gorm:"column:checked_by;not null"`
	CheckDate      time.Time                `gorm:"column:check_date;not null"`
	Resolved       bool                     `gorm:"column:resolved;not null;default:false"`
	ResolvedAt     *time.Time               `gorm:"column:resolved_at"`
	ResolvedBy     *string                  `gorm:"column:resolved_by"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
}
