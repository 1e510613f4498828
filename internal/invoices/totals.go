package invoices

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Totals are the three derived money columns of an invoice.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// Apply copies the totals onto invoice.
func (t Totals) Apply(invoice *models.Invoice) {
	invoice.Subtotal = t.Subtotal
	invoice.TaxAmount = t.TaxAmount
	invoice.Total = t.Total
}

// Negate mirrors the totals for a reversal document.
func (t Totals) Negate() Totals {
	return Totals{
		Subtotal:  t.Subtotal.Neg(),
		TaxAmount: t.TaxAmount.Neg(),
		Total:     t.Total.Neg(),
	}
}

// LineTotal is quantity times unit price, rounded to cents.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(2)
}

// CalculateTotals derives subtotal, tax and total from the item totals using
// the invoice's tax model and rate. An item tax rate overrides the invoice
// rate for that item. Tax is summed unrounded and rounded once.
func CalculateTotals(invoice models.Invoice, items []models.LineItem) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total)
	}
	subtotal = subtotal.Round(2)

	switch invoice.TaxModel {
	case enums.TaxModelSmallBusiness:
		return Totals{Subtotal: subtotal, TaxAmount: decimal.Zero, Total: subtotal}
	case enums.TaxModelAgricultural:
		tax := decimal.Zero
		for _, item := range items {
			rate := itemRate(invoice, item)
			tax = tax.Add(item.Total.Mul(rate).Div(hundred.Add(rate)))
		}
		return Totals{Subtotal: subtotal, TaxAmount: tax.Round(2), Total: subtotal}
	default:
		tax := decimal.Zero
		for _, item := range items {
			tax = tax.Add(item.Total.Mul(itemRate(invoice, item)).Div(hundred))
		}
		tax = tax.Round(2)
		return Totals{Subtotal: subtotal, TaxAmount: tax, Total: subtotal.Add(tax)}
	}
}

func itemRate(invoice models.Invoice, item models.LineItem) decimal.Decimal {
	if item.TaxRate.Valid {
		return item.TaxRate.Decimal
	}
	return invoice.TaxRate
}
