// Package fingerprint computes the SHA-256 digest that seals an invoice's
// financial content at issuance.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

const dateLayout = "2006-01-02"

// Document is the sealed financial state of an invoice. It holds no database
// identifiers, so it can be built from line items that were never persisted.
type Document struct {
	InvoiceNumber string
	CustomerID    string
	InvoiceDate   time.Time
	Subtotal      decimal.Decimal
	TaxRate       decimal.Decimal
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
	TaxModel      enums.TaxModel
	CustomerType  enums.CustomerType
	LineItems     []LineItem
}

type LineItem struct {
	Position    int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	ProductID   *string
	TaxRate     decimal.NullDecimal
}

// Compute returns the 64 character lowercase hex digest of doc.
func Compute(doc Document) (string, error) {
	payload, err := Canonical(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest and compares it with stored.
func Verify(doc Document, stored string) (bool, string, error) {
	computed, err := Compute(doc)
	if err != nil {
		return false, "", err
	}
	ok := subtle.ConstantTimeCompare([]byte(computed), []byte(stored)) == 1
	return ok, computed, nil
}

// Canonical renders the exact bytes that get hashed: compact JSON with keys
// sorted at every level and amounts fixed to two decimals.
func Canonical(doc Document) ([]byte, error) {
	if doc.InvoiceNumber == "" {
		return nil, fmt.Errorf("invoice number is required")
	}

	items := make([]LineItem, len(doc.LineItems))
	copy(items, doc.LineItems)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	lineItems := make([]map[string]any, 0, len(items))
	for _, item := range items {
		var productID any
		if item.ProductID != nil {
			productID = *item.ProductID
		}
		var taxRate any
		if item.TaxRate.Valid {
			taxRate = money(item.TaxRate.Decimal)
		}
		lineItems = append(lineItems, map[string]any{
			"description": item.Description,
			"quantity":    money(item.Quantity),
			"unit_price":  money(item.UnitPrice),
			"total":       money(item.Total),
			"product_id":  productID,
			"tax_rate":    taxRate,
		})
	}

	var invoiceDate any
	if !doc.InvoiceDate.IsZero() {
		invoiceDate = doc.InvoiceDate.Format(dateLayout)
	}

	canonical := map[string]any{
		"invoice_number": doc.InvoiceNumber,
		"customer_id":    doc.CustomerID,
		"invoice_date":   invoiceDate,
		"subtotal":       money(doc.Subtotal),
		"tax_rate":       money(doc.TaxRate),
		"tax_amount":     money(doc.TaxAmount),
		"total":          money(doc.Total),
		"tax_model":      string(doc.TaxModel),
		"customer_type":  string(doc.CustomerType),
		"line_items":     lineItems,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonical); err != nil {
		return nil, fmt.Errorf("encode canonical invoice: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FromInvoice builds the document from an invoice row and its items. The
// items may be unsaved.
func FromInvoice(invoice models.Invoice, items []models.LineItem) Document {
	doc := Document{
		InvoiceNumber: invoice.InvoiceNumber,
		CustomerID:    invoice.CustomerID.String(),
		InvoiceDate:   invoice.InvoiceDate,
		Subtotal:      invoice.Subtotal,
		TaxRate:       invoice.TaxRate,
		TaxAmount:     invoice.TaxAmount,
		Total:         invoice.Total,
		TaxModel:      invoice.TaxModel,
		CustomerType:  invoice.CustomerType,
		LineItems:     make([]LineItem, 0, len(items)),
	}
	for _, item := range items {
		line := LineItem{
			Position:    item.Position,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
			TaxRate:     item.TaxRate,
		}
		if item.ProductID != nil {
			id := item.ProductID.String()
			line.ProductID = &id
		}
		doc.LineItems = append(doc.LineItems, line)
	}
	return doc
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
