package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/internal/auditlog"
	"github.com/angelmondragon/gobd-ledger/internal/inventory"
	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
)

var issueDay = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

type fixture struct {
	client *db.Client
	svc    Service
	audit  auditlog.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.NewSQLite(t)
	cfg := config.LedgerConfig{
		DefaultTaxRate:      "19.00",
		AgriculturalTaxRate: "7.80",
		PaymentTermDays:     14,
		Timezone:            "Europe/Berlin",
	}
	numbers := numbering.NewSequencer()
	publisher := outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop())
	audit, err := auditlog.NewService(auditlog.NewRepository(client.DB()))
	require.NoError(t, err)
	stock, err := inventory.NewService(inventory.NewRepository(client.DB()), client, numbers, publisher, nil, nil, cfg.Location())
	require.NoError(t, err)

	svc, err := NewService(NewRepository(client.DB()), client, numbers, stock, audit, publisher, cfg, nil, nil)
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) }
	return &fixture{client: client, svc: svc, audit: audit}
}

func productItem(id uuid.UUID, qty int64, price string) ItemInput {
	productID := id
	return ItemInput{
		ProductID:   &productID,
		Description: "Honig 500g",
		Quantity:    decimal.NewFromInt(qty),
		UnitPrice:   d(price),
	}
}

// eventTypes lists the outbox events of one aggregate in insertion order.
func (f *fixture) eventTypes(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("aggregate_id = ?", aggregateID).Order("rowid ASC").Find(&rows).Error)
	kinds := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		kinds = append(kinds, row.EventType)
	}
	return kinds
}

func (f *fixture) stockOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	return dbtest.Reload[models.Product](t, f.client.DB(), productID).StockQty
}

func TestCreateIssuesSealedInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	honey := dbtest.SeedProduct(t, f.client.DB(), 10, "10.00")

	invoice, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Status:     enums.InvoiceStatusSent,
		Items: []ItemInput{
			productItem(honey.ID, 2, "10.00"),
			{Description: "Versand", Quantity: decimal.NewFromInt(1), UnitPrice: d("5.00")},
		},
		Actor: adminActor,
	})
	require.NoError(t, err)

	assert.Equal(t, "RE-20260105-0001", invoice.InvoiceNumber)
	assert.True(t, invoice.Subtotal.Equal(d("25.00")))
	assert.True(t, invoice.TaxAmount.Equal(d("4.75")))
	assert.True(t, invoice.Total.Equal(d("29.75")))
	assert.True(t, invoice.TaxRate.Equal(d("19")))
	assert.Equal(t, issueDay, invoice.InvoiceDate)
	require.NotNil(t, invoice.DueDate)
	assert.Equal(t, issueDay.AddDate(0, 0, 14), *invoice.DueDate)
	assert.Len(t, invoice.Fingerprint, 64)

	require.Len(t, invoice.LineItems, 2)
	assert.Equal(t, enums.StockPoolPrimary, invoice.LineItems[0].StockPool)
	assert.Equal(t, enums.StockPoolNone, invoice.LineItems[1].StockPool)
	assert.Equal(t, 8, f.stockOf(t, honey.ID))

	history, err := f.audit.History(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldStatus)
	assert.Equal(t, enums.InvoiceStatusSent, history[0].NewStatus)
	assert.Equal(t, "anna", history[0].ChangedBy)

	assert.Equal(t, []enums.OutboxEventType{enums.EventInvoiceCreated}, f.eventTypes(t, invoice.ID))

	result, err := f.svc.Verify(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, invoice.Fingerprint, result.Computed)
	assert.NoError(t, result.Err())
}

func TestCreateDefaultsPerTaxModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agricultural, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		TaxModel:   enums.TaxModelAgricultural,
		Items:      []ItemInput{{Description: "Eier", Quantity: d("10"), UnitPrice: d("2.50")}},
		Actor:      cashierActor,
	})
	require.NoError(t, err)
	assert.True(t, agricultural.TaxRate.Equal(d("7.8")))
	assert.True(t, agricultural.Total.Equal(d("25.00")))
	assert.True(t, agricultural.TaxAmount.Equal(d("1.81")))
	assert.Equal(t, enums.InvoiceStatusDraft, agricultural.Status)

	exempt, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		TaxModel:   enums.TaxModelSmallBusiness,
		Items:      []ItemInput{{Description: "Eier", Quantity: d("10"), UnitPrice: d("2.50")}},
		Actor:      cashierActor,
	})
	require.NoError(t, err)
	assert.True(t, exempt.TaxRate.IsZero())
	assert.True(t, exempt.TaxAmount.IsZero())
	assert.Equal(t, "RE-20260105-0002", exempt.InvoiceNumber)
}

func TestCreateResellerDrawsFromConsignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	honey := dbtest.SeedProduct(t, f.client.DB(), 10, "10.00")
	reseller := uuid.New()
	row := dbtest.SeedConsignment(t, f.client.DB(), reseller, honey.ID, 5, 0, "8.00")

	invoice, err := f.svc.Create(ctx, CreateInput{
		CustomerID:   reseller,
		CustomerType: enums.CustomerTypeReseller,
		Items:        []ItemInput{productItem(honey.ID, 3, "8.00")},
		Actor:        adminActor,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.StockPoolConsignment, invoice.LineItems[0].StockPool)
	assert.Equal(t, 10, f.stockOf(t, honey.ID))

	consignment := dbtest.Reload[models.ConsignmentStock](t, f.client.DB(), row.ID)
	assert.Equal(t, 2, consignment.Quantity)
	assert.Equal(t, 3, consignment.QuantitySold)
}

func TestCreateRollsBackOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	honey := dbtest.SeedProduct(t, f.client.DB(), 1, "10.00")

	_, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Items:      []ItemInput{productItem(honey.ID, 2, "10.00")},
		Actor:      adminActor,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 1, f.stockOf(t, honey.ID))

	next, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Items:      []ItemInput{productItem(honey.ID, 1, "10.00")},
		Actor:      adminActor,
	})
	require.NoError(t, err)
	assert.Equal(t, "RE-20260105-0001", next.InvoiceNumber, "a rolled back number is reissued")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	honey := dbtest.SeedProduct(t, f.client.DB(), 10, "10.00")
	original := uuid.New()
	base := func() CreateInput {
		return CreateInput{
			CustomerID: uuid.New(),
			Items:      []ItemInput{productItem(honey.ID, 1, "10.00")},
			Actor:      adminActor,
		}
	}

	cases := []struct {
		name   string
		mutate func(*CreateInput)
		code   pkgerrors.Code
	}{
		{name: "missing customer", mutate: func(in *CreateInput) { in.CustomerID = uuid.Nil }, code: pkgerrors.CodeValidation},
		{name: "missing actor", mutate: func(in *CreateInput) { in.Actor.Name = "" }, code: pkgerrors.CodeUnauthorized},
		{name: "no items", mutate: func(in *CreateInput) { in.Items = nil }, code: pkgerrors.CodeValidation},
		{name: "fractional stocked quantity", mutate: func(in *CreateInput) { in.Items[0].Quantity = d("1.5") }, code: pkgerrors.CodeValidation},
		{name: "negative quantity", mutate: func(in *CreateInput) { in.Items[0].Quantity = d("-1") }, code: pkgerrors.CodeValidation},
		{name: "negative price", mutate: func(in *CreateInput) { in.Items[0].UnitPrice = d("-1") }, code: pkgerrors.CodeValidation},
		{name: "blank description", mutate: func(in *CreateInput) { in.Items[0].Description = " " }, code: pkgerrors.CodeValidation},
		{name: "storno prefix without original", mutate: func(in *CreateInput) { in.Prefix = enums.PrefixReversal }, code: pkgerrors.CodeValidation},
		{name: "reversal link without storno prefix", mutate: func(in *CreateInput) { in.ReversalOf = &original }, code: pkgerrors.CodeValidation},
		{name: "non invoice prefix", mutate: func(in *CreateInput) { in.Prefix = enums.PrefixDeliveryNote }, code: pkgerrors.CodeValidation},
		{name: "issued cancelled", mutate: func(in *CreateInput) { in.Status = enums.InvoiceStatusCancelled }, code: pkgerrors.CodeValidation},
		{name: "tax rate out of range", mutate: func(in *CreateInput) { in.TaxRate = decimal.NewNullDecimal(d("100")) }, code: pkgerrors.CodeValidation},
		{name: "due before issue", mutate: func(in *CreateInput) {
			due := issueDay.AddDate(0, 0, -1)
			in.DueDate = &due
		}, code: pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := base()
			tc.mutate(&input)
			_, err := f.svc.Create(context.Background(), input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Equal(t, 10, f.stockOf(t, honey.ID))
}

func TestTransitionLifecycleReinstatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	honey := dbtest.SeedProduct(t, f.client.DB(), 10, "10.00")

	invoice, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Items:      []ItemInput{productItem(honey.ID, 4, "10.00")},
		Actor:      adminActor,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, f.stockOf(t, honey.ID))

	sent, err := f.svc.Transition(ctx, TransitionInput{InvoiceID: invoice.ID, Target: enums.InvoiceStatusSent, Actor: cashierActor})
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusSent, sent.Status)

	paid, err := f.svc.Transition(ctx, TransitionInput{InvoiceID: invoice.ID, Target: enums.InvoiceStatusPaid, Actor: cashierActor, PaymentMethod: "ueberweisung"})
	require.NoError(t, err)
	require.NotNil(t, paid.PaymentMethod)
	assert.Equal(t, "ueberweisung", *paid.PaymentMethod)

	_, err = f.svc.Transition(ctx, TransitionInput{InvoiceID: invoice.ID, Target: enums.InvoiceStatusCancelled, Actor: adminActor, Reason: "Kunde storniert"})
	require.NoError(t, err)
	assert.Equal(t, 10, f.stockOf(t, honey.ID))

	_, err = f.svc.Transition(ctx, TransitionInput{InvoiceID: invoice.ID, Target: enums.InvoiceStatusCancelled, Actor: adminActor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 10, f.stockOf(t, honey.ID), "a refused transition must not reinstate again")

	history, err := f.audit.History(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	var trail []enums.InvoiceStatus
	for _, entry := range history {
		trail = append(trail, entry.NewStatus)
	}
	assert.Equal(t, []enums.InvoiceStatus{
		enums.InvoiceStatusDraft,
		enums.InvoiceStatusSent,
		enums.InvoiceStatusPaid,
		enums.InvoiceStatusCancelled,
	}, trail)
	require.NotNil(t, history[3].Reason)
	assert.Equal(t, "Kunde storniert", *history[3].Reason)

	stored := dbtest.Reload[models.Invoice](t, f.client.DB(), invoice.ID)
	assert.Equal(t, enums.InvoiceStatusCancelled, stored.Status)
	assert.Equal(t, invoice.Fingerprint, stored.Fingerprint)

	result, err := f.svc.Verify(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid, "status changes stay outside the seal")
}

func TestTransitionRefusalLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Status:     enums.InvoiceStatusSent,
		Items:      []ItemInput{{Description: "Beratung", Quantity: d("1"), UnitPrice: d("50.00")}},
		Actor:      adminActor,
	})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, TransitionInput{InvoiceID: invoice.ID, Target: enums.InvoiceStatusDraft, Actor: adminActor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.Transition(ctx, TransitionInput{InvoiceID: invoice.ID, Target: enums.InvoiceStatusCancelled, Actor: cashierActor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Transition(ctx, TransitionInput{InvoiceID: uuid.New(), Target: enums.InvoiceStatusPaid, Actor: adminActor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	history, err := f.audit.History(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, enums.InvoiceStatusSent, dbtest.Reload[models.Invoice](t, f.client.DB(), invoice.ID).Status)
}

func TestDeleteDraftReinstatesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	honey := dbtest.SeedProduct(t, f.client.DB(), 5, "10.00")

	draft, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Items:      []ItemInput{productItem(honey.ID, 2, "10.00")},
		Actor:      adminActor,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, f.stockOf(t, honey.ID))

	err = f.svc.Delete(ctx, DeleteInput{InvoiceID: draft.ID, Actor: resellerActor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.Delete(ctx, DeleteInput{InvoiceID: draft.ID, Actor: adminActor}))
	assert.Equal(t, 5, f.stockOf(t, honey.ID))

	_, err = f.svc.Get(ctx, draft.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.LineItem{}).Where("invoice_id = ?", draft.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.client.DB().Model(&models.InvoiceStatusLog{}).Where("invoice_id = ?", draft.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.Equal(t, []enums.OutboxEventType{enums.EventInvoiceCreated, enums.EventInvoiceDeleted}, f.eventTypes(t, draft.ID))
}

func TestDeleteRefusesIssuedInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Status:     enums.InvoiceStatusSent,
		Items:      []ItemInput{{Description: "Beratung", Quantity: d("1"), UnitPrice: d("50.00")}},
		Actor:      adminActor,
	})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, DeleteInput{InvoiceID: invoice.ID, Actor: adminActor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	got, err := f.svc.GetByNumber(ctx, invoice.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, got.ID)
}

func TestVerifyFlagsTamperedInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Status:     enums.InvoiceStatusSent,
		Items:      []ItemInput{{Description: "Beratung", Quantity: d("1"), UnitPrice: d("50.00")}},
		Actor:      adminActor,
	})
	require.NoError(t, err)

	// sqlite carries no protection triggers, so the row can be edited behind the ledger's back.
	require.NoError(t, f.client.DB().Exec(`UPDATE line_items SET unit_price = '5.00', total = '5.00' WHERE invoice_id = ?`, invoice.ID).Error)

	result, err := f.svc.VerifyByNumber(ctx, invoice.InvoiceNumber)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, invoice.Fingerprint, result.Stored)
	assert.NotEqual(t, result.Stored, result.Computed)
	assert.True(t, pkgerrors.IsCode(result.Err(), pkgerrors.CodeIntegrity))

	stored := dbtest.Reload[models.Invoice](t, f.client.DB(), invoice.ID)
	assert.Equal(t, invoice.Fingerprint, stored.Fingerprint, "a mismatch is never repaired")

	assert.Equal(t, []enums.OutboxEventType{enums.EventInvoiceCreated, enums.EventInvoiceTampered}, f.eventTypes(t, invoice.ID))

	again, err := f.svc.Verify(ctx, invoice.ID)
	require.NoError(t, err)
	assert.False(t, again.Valid)
	assert.Len(t, f.eventTypes(t, invoice.ID), 2, "repeat verification does not raise a second alert")
}

func TestAppendNoteKeepsSeal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, CreateInput{
		CustomerID: uuid.New(),
		Status:     enums.InvoiceStatusSent,
		Notes:      "Lieferung Januar",
		Items:      []ItemInput{{Description: "Beratung", Quantity: d("1"), UnitPrice: d("50.00")}},
		Actor:      adminActor,
	})
	require.NoError(t, err)

	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.AppendNoteTx(ctx, tx, invoice.ID, "Storniert durch STORNO-20260105-0001")
	}))

	stored := dbtest.Reload[models.Invoice](t, f.client.DB(), invoice.ID)
	require.NotNil(t, stored.Notes)
	assert.Equal(t, "Lieferung Januar\nStorniert durch STORNO-20260105-0001", *stored.Notes)

	result, err := f.svc.Verify(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestUpdateInvoiceRefusesSealedColumns(t *testing.T) {
	f := newFixture(t)
	repo := NewRepository(f.client.DB())

	for _, column := range []string{"fingerprint", "total", "subtotal", "tax_amount", "invoice_number"} {
		err := repo.UpdateInvoice(context.Background(), uuid.New(), map[string]any{column: "x", "notes": "y"})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), column)
	}

	err := repo.UpdateInvoice(context.Background(), uuid.New(), map[string]any{"notes": "y"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
