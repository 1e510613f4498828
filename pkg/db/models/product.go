package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product carries the primary stock counter.
type Product struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string              `gorm:"column:name;not null"`
	PackageSize   *string             `gorm:"column:package_size"`
	LotNumber     *string             `gorm:"column:lot_number;index"`
	StockQty      int                 `gorm:"column:stock_qty;not null;default:0"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	ResellerPrice decimal.NullDecimal `gorm:"column:reseller_price;type:numeric(12,2)"`
	TaxRate       decimal.Decimal     `gorm:"column:tax_rate;type:numeric(5,2);not null"`
	Active        bool                `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// ConsignmentStock is goods held by a reseller, one row per (customer, product).
type ConsignmentStock struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID         uuid.UUID       `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:ux_consignment_customer_product"`
	ProductID          uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_consignment_customer_product"`
	Quantity           int             `gorm:"column:quantity;not null;default:0"`
	QuantitySold       int             `gorm:"column:quantity_sold;not null;default:0"`
	UnitPrice          decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LastDeliveryNoteID *uuid.UUID      `gorm:"column:last_delivery_note_id;type:uuid"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ConsignmentStock) TableName() string {
	return "consignment_stock"
}
