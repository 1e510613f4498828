package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// DeliveryNote moves goods from primary stock into a reseller's consignment stock.
type DeliveryNote struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DeliveryNoteNumber string                   `gorm:"column:delivery_note_number;not null;uniqueIndex"`
	CustomerID         uuid.UUID                `gorm:"column:customer_id;type:uuid;not null"`
	DeliveryDate       time.Time                `gorm:"column:delivery_date;type:date;not null"`
	Status             enums.DeliveryNoteStatus `gorm:"column:status;not null;default:delivered"`
	ShowTax            bool                     `gorm:"column:show_tax;not null;default:false"`
	Notes              *string                  `gorm:"column:notes"`
	CreatedBy          string                   `gorm:"column:created_by;not null"`
	Items              []DeliveryNoteItem       `gorm:"foreignKey:DeliveryNoteID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
}

// Total sums the item totals at reseller price.
func (d DeliveryNote) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.Total)
	}
	return total
}

type DeliveryNoteItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DeliveryNoteID uuid.UUID       `gorm:"column:delivery_note_id;type:uuid;not null;index"`
	ProductID      uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Description    string          `gorm:"column:description;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Total          decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	Position       int             `gorm:"column:position;not null;default:0"`
}
