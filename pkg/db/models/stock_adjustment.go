package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// StockAdjustment documents a manual change to primary stock.
type StockAdjustment struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID      uuid.UUID                 `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity       int                       `gorm:"column:quantity;not null"`
	OldStock       int                       `gorm:"column:old_stock;not null"`
	NewStock       int                       `gorm:"column:new_stock;not null"`
	AdjustmentType enums.StockAdjustmentType `gorm:"column:adjustment_type;not null"`
	Reason         string                    `gorm:"column:reason;not null"`
	AdjustedBy     string                    `gorm:"column:adjusted_by;not null"`
	AdjustedAt     time.Time                 `gorm:"column:adjusted_at;not null"`
	DocumentNumber *string                   `gorm:"column:document_number;uniqueIndex"`
}
