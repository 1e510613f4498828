package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gobd-ledger/internal/dispatch"
	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/internal/invoices/invoicestest"
	"github.com/angelmondragon/gobd-ledger/internal/pos"
	"github.com/angelmondragon/gobd-ledger/internal/reconciliation"
	"github.com/angelmondragon/gobd-ledger/internal/reversal"
	"github.com/angelmondragon/gobd-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

type nopRenderer struct{}

func (nopRenderer) Render(context.Context, *models.Invoice) (dispatch.Document, error) {
	return dispatch.Document{Content: []byte("%PDF-1.4")}, nil
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, dispatch.Message) error { return nil }

func TestNewRequiresDB(t *testing.T) {
	_, err := New(Params{})
	assert.Error(t, err)
}

func TestNewWiresServices(t *testing.T) {
	client := dbtest.NewSQLite(t)

	services, err := New(Params{DB: client, Config: invoicestest.LedgerConfig()})
	require.NoError(t, err)
	assert.NotNil(t, services.Invoices)
	assert.NotNil(t, services.Reversal)
	assert.NotNil(t, services.Reconciliation)
	assert.NotNil(t, services.Reminders)
	assert.NotNil(t, services.POS)
	assert.NotNil(t, services.DeliveryNotes)
	assert.NotNil(t, services.Consignment)
	assert.Nil(t, services.Dispatch)

	services, err = New(Params{DB: client, Config: invoicestest.LedgerConfig(), Renderer: nopRenderer{}, Mailer: nopMailer{}})
	require.NoError(t, err)
	assert.NotNil(t, services.Dispatch)
}

func TestWiredServicesShareOneLedger(t *testing.T) {
	client := dbtest.NewSQLite(t)
	services, err := New(Params{DB: client, Config: invoicestest.LedgerConfig()})
	require.NoError(t, err)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, client.DB(), 4, "6.00")

	sale, err := services.POS.CompleteSale(ctx, pos.SaleInput{Items: []pos.SaleItem{{ProductID: product.ID, Quantity: 2}}})
	require.NoError(t, err)
	assert.Equal(t, 2, dbtest.Reload[models.Product](t, client.DB(), product.ID).StockQty)

	result, err := services.Reversal.Reverse(ctx, reversal.ReverseInput{InvoiceID: sale.ID, Actor: invoicestest.Admin, Reason: "Fehlbuchung"})
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusCancelled, result.Original.Status)
	assert.True(t, result.Reversal.Total.Equal(sale.Total.Neg()))
	assert.True(t, result.Reversal.Total.LessThan(decimal.Zero))
	assert.Equal(t, 4, dbtest.Reload[models.Product](t, client.DB(), product.ID).StockQty)
}

// TestInvoiceLifecycleFromDraftToStorno walks one invoice through issue,
// payment and reversal on the wired services.
func TestInvoiceLifecycleFromDraftToStorno(t *testing.T) {
	client := dbtest.NewSQLite(t)
	services, err := New(Params{DB: client, Config: invoicestest.LedgerConfig()})
	require.NoError(t, err)
	ctx := context.Background()
	conn := client.DB()
	product := dbtest.SeedProduct(t, conn, 10, "6.50")

	draft, err := services.Invoices.Create(ctx, invoices.CreateInput{
		CustomerID:  uuid.New(),
		InvoiceDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Items: []invoices.ItemInput{
			invoicestest.Item(product.ID, 3, "6.50"),
			{Description: "Versand", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("10.50")},
		},
		Actor: invoicestest.Admin,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusDraft, draft.Status)
	assert.True(t, draft.Subtotal.Equal(decimal.RequireFromString("30.00")), "subtotal %s", draft.Subtotal)
	assert.True(t, draft.TaxAmount.Equal(decimal.RequireFromString("5.70")), "tax %s", draft.TaxAmount)
	assert.True(t, draft.Total.Equal(decimal.RequireFromString("35.70")), "total %s", draft.Total)
	assert.Len(t, draft.Fingerprint, 64)
	assert.Equal(t, 7, dbtest.Reload[models.Product](t, conn, product.ID).StockQty)

	sent, err := services.Invoices.Transition(ctx, invoices.TransitionInput{InvoiceID: draft.ID, Target: enums.InvoiceStatusSent, Actor: invoicestest.Admin})
	require.NoError(t, err)
	assert.Equal(t, draft.Fingerprint, sent.Fingerprint)

	verified, err := services.Invoices.Verify(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, verified.Valid)

	check, err := services.Reconciliation.Check(ctx, reconciliation.CheckInput{
		InvoiceNumber: draft.InvoiceNumber,
		Amount:        decimal.RequireFromString("35.70"),
		Actor:         types.SystemActor("Bank-Import"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentCheckMatched, check.Status)
	paid, err := services.Invoices.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPaid, paid.Status)

	err = services.Invoices.Delete(ctx, invoices.DeleteInput{InvoiceID: draft.ID, Actor: invoicestest.Admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	result, err := services.Reversal.Reverse(ctx, reversal.ReverseInput{InvoiceID: draft.ID, Actor: invoicestest.Admin, Reason: "Kunde hat storniert"})
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusCancelled, result.Original.Status)
	assert.True(t, strings.HasPrefix(result.Reversal.InvoiceNumber, "STORNO-"), result.Reversal.InvoiceNumber)
	assert.Equal(t, 10, dbtest.Reload[models.Product](t, conn, product.ID).StockQty)

	storno, err := services.Invoices.Get(ctx, result.Reversal.ID)
	require.NoError(t, err)
	assert.True(t, storno.Subtotal.Equal(paid.Subtotal.Neg()))
	assert.True(t, storno.TaxAmount.Equal(paid.TaxAmount.Neg()))
	assert.True(t, storno.Total.Equal(paid.Total.Neg()))
	require.Len(t, storno.LineItems, len(paid.LineItems))
	for i, item := range storno.LineItems {
		original := paid.LineItems[i]
		assert.True(t, item.Quantity.Equal(original.Quantity.Neg()), "quantity of position %d", item.Position)
		assert.True(t, item.Total.Equal(original.Total.Neg()), "total of position %d", item.Position)
		assert.True(t, item.UnitPrice.Equal(original.UnitPrice))
	}

	stornoSeal, err := services.Invoices.Verify(ctx, storno.ID)
	require.NoError(t, err)
	assert.True(t, stornoSeal.Valid)
	originalSeal, err := services.Invoices.Verify(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, originalSeal.Valid, "cross-reference notes are outside the seal")

	history, err := services.Audit.History(ctx, draft.ID)
	require.NoError(t, err)
	statuses := make([]enums.InvoiceStatus, 0, len(history))
	for _, entry := range history {
		statuses = append(statuses, entry.NewStatus)
	}
	assert.Equal(t, []enums.InvoiceStatus{
		enums.InvoiceStatusDraft,
		enums.InvoiceStatusSent,
		enums.InvoiceStatusPaid,
		enums.InvoiceStatusCancelled,
	}, statuses)
}
