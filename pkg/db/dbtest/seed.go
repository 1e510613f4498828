package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// SeedProduct inserts an active product with the given primary stock.
func SeedProduct(t *testing.T, conn *gorm.DB, stock int, price string) models.Product {
	t.Helper()
	lot := "LOT-" + uuid.NewString()[:8]
	product := models.Product{
		ID:        uuid.New(),
		Name:      "Honig 500g",
		LotNumber: &lot,
		StockQty:  stock,
		Price:     decimal.RequireFromString(price),
		TaxRate:   decimal.RequireFromString("7.80"),
		Active:    true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedConsignment inserts a consignment row for (customer, product).
func SeedConsignment(t *testing.T, conn *gorm.DB, customerID, productID uuid.UUID, qty, sold int, unitPrice string) models.ConsignmentStock {
	t.Helper()
	row := models.ConsignmentStock{
		ID:           uuid.New(),
		CustomerID:   customerID,
		ProductID:    productID,
		Quantity:     qty,
		QuantitySold: sold,
		UnitPrice:    decimal.RequireFromString(unitPrice),
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed consignment: %v", err)
	}
	return row
}

// SeedInvoice inserts a bare invoice row without line items. The fingerprint
// is a placeholder; tests that verify seals create invoices through the
// invoice service instead.
func SeedInvoice(t *testing.T, conn *gorm.DB, number string, status enums.InvoiceStatus, total string) models.Invoice {
	t.Helper()
	amount := decimal.RequireFromString(total)
	invoice := models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: number,
		CustomerID:    uuid.New(),
		InvoiceDate:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:        status,
		Subtotal:      amount,
		TaxRate:       decimal.Zero,
		TaxAmount:     decimal.Zero,
		Total:         amount,
		TaxModel:      enums.TaxModelSmallBusiness,
		CustomerType:  enums.CustomerTypeEndCustomer,
		Fingerprint:   "0000000000000000000000000000000000000000000000000000000000000000",
	}
	if err := conn.Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return invoice
}

// Reload fetches a fresh copy of the row with the given primary key.
func Reload[T any](t *testing.T, conn *gorm.DB, id uuid.UUID) T {
	t.Helper()
	var row T
	if err := conn.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("reload %T: %v", row, err)
	}
	return row
}
