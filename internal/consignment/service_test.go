package consignment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gobd-ledger/internal/invoices/invoicestest"
	"github.com/angelmondragon/gobd-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

var settleTime = time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*invoicestest.Stack, Service) {
	t.Helper()
	stack := invoicestest.New(t)
	svc, err := NewService(stack.Inventory, stack.Invoices, stack.Config, nil)
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return settleTime }
	return stack, svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	stack := invoicestest.New(t)

	_, err := NewService(nil, stack.Invoices, stack.Config, nil)
	assert.Error(t, err)
	_, err = NewService(stack.Inventory, nil, stack.Config, nil)
	assert.Error(t, err)
}

func TestSettleWithTaxShown(t *testing.T) {
	stack, svc := newTestService(t)
	ctx := context.Background()
	conn := stack.Client.DB()
	reseller := uuid.New()
	product := dbtest.SeedProduct(t, conn, 10, "6.00")
	row := dbtest.SeedConsignment(t, conn, reseller, product.ID, 5, 0, "4.80")

	invoice, err := svc.Settle(ctx, SettleInput{
		CustomerID: reseller,
		ShowTax:    true,
		Items:      []SoldItem{{ProductID: product.ID, Quantity: 3}},
		Actor:      invoicestest.Admin,
	})
	require.NoError(t, err)

	assert.Equal(t, "KOM-20260131-0001", invoice.InvoiceNumber)
	assert.Equal(t, enums.InvoiceStatusSent, invoice.Status)
	assert.Equal(t, enums.CustomerTypeReseller, invoice.CustomerType)
	assert.Equal(t, enums.TaxModelAgricultural, invoice.TaxModel)
	assert.True(t, invoice.TaxRate.Equal(decimal.RequireFromString("7.80")))
	assert.True(t, invoice.Total.Equal(decimal.RequireFromString("14.40")), "total %s", invoice.Total)
	assert.True(t, invoice.TaxAmount.Equal(decimal.RequireFromString("1.04")), "tax %s", invoice.TaxAmount)
	require.NotNil(t, invoice.DueDate)
	assert.Equal(t, "2026-02-14", invoice.DueDate.Format("2006-01-02"))

	require.Len(t, invoice.LineItems, 1)
	assert.Equal(t, enums.StockPoolConsignment, invoice.LineItems[0].StockPool)
	assert.True(t, invoice.LineItems[0].UnitPrice.Equal(decimal.RequireFromString("4.80")))

	held := dbtest.Reload[models.ConsignmentStock](t, conn, row.ID)
	assert.Equal(t, 2, held.Quantity)
	assert.Equal(t, 3, held.QuantitySold)
	assert.Equal(t, 10, dbtest.Reload[models.Product](t, conn, product.ID).StockQty)

	verified, err := stack.Invoices.Verify(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, verified.Valid)
}

func TestSettleWithoutTaxUsesSmallBusiness(t *testing.T) {
	stack, svc := newTestService(t)
	conn := stack.Client.DB()
	reseller := uuid.New()
	product := dbtest.SeedProduct(t, conn, 10, "6.00")
	dbtest.SeedConsignment(t, conn, reseller, product.ID, 5, 0, "4.80")

	invoice, err := svc.Settle(context.Background(), SettleInput{
		CustomerID: reseller,
		Items:      []SoldItem{{ProductID: product.ID, Quantity: 5}},
		Status:     enums.InvoiceStatusDraft,
		Actor:      invoicestest.Admin,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.TaxModelSmallBusiness, invoice.TaxModel)
	assert.Equal(t, enums.InvoiceStatusDraft, invoice.Status)
	assert.True(t, invoice.TaxAmount.IsZero())
	assert.True(t, invoice.Total.Equal(decimal.RequireFromString("24.00")), "total %s", invoice.Total)
}

func TestSettleRefusals(t *testing.T) {
	stack, svc := newTestService(t)
	conn := stack.Client.DB()
	reseller := uuid.New()
	product := dbtest.SeedProduct(t, conn, 10, "6.00")
	other := dbtest.SeedProduct(t, conn, 10, "3.00")
	row := dbtest.SeedConsignment(t, conn, reseller, product.ID, 2, 0, "4.80")

	cases := []struct {
		name  string
		input SettleInput
		code  pkgerrors.Code
	}{
		{name: "missing customer", input: SettleInput{Items: []SoldItem{{ProductID: product.ID, Quantity: 1}}, Actor: invoicestest.Admin}, code: pkgerrors.CodeValidation},
		{name: "no items", input: SettleInput{CustomerID: reseller, Actor: invoicestest.Admin}, code: pkgerrors.CodeValidation},
		{name: "paid status", input: SettleInput{CustomerID: reseller, Items: []SoldItem{{ProductID: product.ID, Quantity: 1}}, Status: enums.InvoiceStatusPaid, Actor: invoicestest.Admin}, code: pkgerrors.CodeValidation},
		{name: "not on consignment", input: SettleInput{CustomerID: reseller, Items: []SoldItem{{ProductID: other.ID, Quantity: 1}}, Actor: invoicestest.Admin}, code: pkgerrors.CodeValidation},
		{name: "more than held", input: SettleInput{CustomerID: reseller, Items: []SoldItem{{ProductID: product.ID, Quantity: 3}}, Actor: invoicestest.Admin}, code: pkgerrors.CodeValidation},
		{name: "anonymous", input: SettleInput{CustomerID: reseller, Items: []SoldItem{{ProductID: product.ID, Quantity: 1}}}, code: pkgerrors.CodeUnauthorized},
		{
			name: "reseller",
			input: SettleInput{
				CustomerID: reseller,
				Items:      []SoldItem{{ProductID: product.ID, Quantity: 1}},
				Actor:      types.Actor{Name: "hofladen", Role: enums.ActorRoleReseller},
			},
			code: pkgerrors.CodeForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Settle(context.Background(), tc.input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "%v", err)
		})
	}

	assert.Equal(t, 2, dbtest.Reload[models.ConsignmentStock](t, conn, row.ID).Quantity)
}

func TestStatementValuesPositions(t *testing.T) {
	stack, svc := newTestService(t)
	conn := stack.Client.DB()
	reseller := uuid.New()
	product := dbtest.SeedProduct(t, conn, 10, "6.00")
	dbtest.SeedConsignment(t, conn, reseller, product.ID, 2, 7, "4.80")

	positions, err := svc.Statement(context.Background(), reseller)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "Honig 500g", positions[0].Description)
	assert.Equal(t, 7, positions[0].QuantitySold)
	assert.True(t, positions[0].Value.Equal(decimal.RequireFromString("9.60")))

	empty, err := svc.Statement(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
