package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reminder is a dunning notice for an overdue sent invoice.
type Reminder struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReminderNumber string          `gorm:"column:reminder_number;not null;uniqueIndex"`
	InvoiceID      uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null;index"`
	ReminderLevel  int             `gorm:"column:reminder_level;not null"`
	ReminderDate   time.Time       `gorm:"column:reminder_date;not null"`
	SentDate       *time.Time      `gorm:"column:sent_date"`
	SentVia        *string         `gorm:"column:sent_via"`
	ReminderFee    decimal.Decimal `gorm:"column:reminder_fee;type:numeric(12,2);not null"`
	Notes          *string         `gorm:"column:notes"`
	CreatedBy      string          `gorm:"column:created_by;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
