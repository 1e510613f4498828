package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvoiceStatus(t *testing.T) {
	for _, raw := range []string{"draft", "sent", "paid", "cancelled"} {
		status, err := ParseInvoiceStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, status.String())
	}

	_, err := ParseInvoiceStatus("storniert")
	assert.Error(t, err)
	_, err = ParseInvoiceStatus("Paid")
	assert.Error(t, err, "status names are case sensitive")
}

func TestInvoiceStatusIsFinal(t *testing.T) {
	assert.True(t, InvoiceStatusCancelled.IsFinal())
	assert.False(t, InvoiceStatusPaid.IsFinal())
	assert.False(t, InvoiceStatusDraft.IsFinal())
}

func TestCustomerTypeStockPool(t *testing.T) {
	assert.Equal(t, StockPoolPrimary, CustomerTypeEndCustomer.StockPool())
	assert.Equal(t, StockPoolConsignment, CustomerTypeReseller.StockPool())
}

func TestStockPoolTracked(t *testing.T) {
	assert.True(t, StockPoolPrimary.Tracked())
	assert.True(t, StockPoolConsignment.Tracked())
	assert.False(t, StockPoolNone.Tracked())
	assert.False(t, StockPool("").Tracked())
}

func TestParseTaxModel(t *testing.T) {
	model, err := ParseTaxModel("landwirtschaft")
	require.NoError(t, err)
	assert.Equal(t, TaxModelAgricultural, model)

	_, err = ParseTaxModel("flat")
	assert.Error(t, err)
}

func TestDocumentPrefixes(t *testing.T) {
	assert.True(t, PrefixReversal.IsInvoicePrefix())
	assert.True(t, PrefixSettlement.IsInvoicePrefix())
	assert.False(t, PrefixDeliveryNote.IsInvoicePrefix())
	assert.False(t, PrefixReminder.IsInvoicePrefix())

	_, err := ParseDocumentPrefix("XX")
	assert.Error(t, err)
}

func TestPaymentCheckStatusNeedsReview(t *testing.T) {
	assert.False(t, PaymentCheckMatched.NeedsReview())
	assert.True(t, PaymentCheckMismatch.NeedsReview())
	assert.True(t, PaymentCheckNotFound.NeedsReview())
	assert.True(t, PaymentCheckDuplicate.NeedsReview())

	_, err := ParsePaymentResolveAction("refund")
	assert.Error(t, err)
}

func TestParseStockAdjustmentType(t *testing.T) {
	adjustment, err := ParseStockAdjustmentType("verderb")
	require.NoError(t, err)
	assert.Equal(t, StockAdjustmentSpoilage, adjustment)
	assert.True(t, StockAdjustmentPrivateWithdrawal.RequiresDocument())
	assert.False(t, StockAdjustmentSpoilage.RequiresDocument())
	assert.True(t, StockAdjustmentBreakage.Reduces())
	assert.False(t, StockAdjustmentCorrection.Reduces())
	assert.True(t, StockAdjustmentInventoryPlus.Adds())
	assert.False(t, StockAdjustmentOther.Adds())
}

func TestOutboxEventTypes(t *testing.T) {
	event, err := ParseOutboxEventType("invoice.reversed")
	require.NoError(t, err)
	assert.Equal(t, EventInvoiceReversed, event)
	assert.False(t, OutboxEventType("order_created").IsValid())
	assert.True(t, AggregateInvoice.IsValid())
}
