package archive

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/internal/invoices/invoicestest"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
)

var pdf = []byte("%PDF-1.7 Rechnung RE-20260105-0001")

func newTestService(t *testing.T) (*invoicestest.Stack, Service) {
	t.Helper()
	stack := invoicestest.New(t)
	svc, err := NewService(NewRepository(stack.Client.DB()), stack.Client, stack.Invoices, stack.Outbox, nil)
	require.NoError(t, err)
	return stack, svc
}

func eggs() invoices.ItemInput {
	return invoices.ItemInput{Description: "Eier", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("0.35")}
}

func TestHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(nil))
	assert.Len(t, Hash(pdf), 64)
}

func TestRecordIsWriteOncePerFilename(t *testing.T) {
	stack, svc := newTestService(t)
	ctx := context.Background()
	invoice := invoicestest.IssueSent(t, stack, eggs())

	first, err := svc.Record(ctx, RecordInput{InvoiceID: invoice.ID, Filename: "pdfs/Rechnung_RE-20260105-0001.pdf", Content: pdf, ArchivedBy: invoicestest.Admin})
	require.NoError(t, err)
	require.True(t, first.Created)
	assert.Equal(t, "Rechnung_RE-20260105-0001.pdf", first.Entry.PdfFilename)
	assert.Equal(t, Hash(pdf), first.Entry.PdfHash)
	assert.Equal(t, int64(len(pdf)), first.Entry.FileSize)
	assert.Equal(t, "anna", first.Entry.ArchivedBy)

	again, err := svc.Record(ctx, RecordInput{InvoiceID: invoice.ID, Filename: "Rechnung_RE-20260105-0001.pdf", Content: []byte("different bytes")})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Entry.ID, again.Entry.ID)
	assert.Equal(t, Hash(pdf), again.Entry.PdfHash)

	second, err := svc.Record(ctx, RecordInput{InvoiceID: invoice.ID, Filename: "Rechnung_RE-20260105-0001_kopie.pdf", Content: pdf})
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.Equal(t, "System", second.Entry.ArchivedBy)

	entries, err := svc.List(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	var archived int64
	require.NoError(t, stack.Client.DB().Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", invoice.ID, enums.EventInvoiceArchived).
		Count(&archived).Error)
	assert.Equal(t, int64(2), archived)

	ok, err := svc.Verify(ctx, invoice.ID, "Rechnung_RE-20260105-0001.pdf", pdf)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Verify(ctx, invoice.ID, "Rechnung_RE-20260105-0001.pdf", []byte("tampered"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordSkipsInvoicesThatAreNotSent(t *testing.T) {
	stack, svc := newTestService(t)
	ctx := context.Background()
	draft, err := stack.Invoices.Create(ctx, invoices.CreateInput{
		CustomerID: uuid.New(),
		Items:      []invoices.ItemInput{eggs()},
		Actor:      invoicestest.Admin,
	})
	require.NoError(t, err)

	result, err := svc.Record(ctx, RecordInput{InvoiceID: draft.ID, Filename: "draft.pdf", Content: pdf})
	require.NoError(t, err)
	assert.Nil(t, result.Entry)
	assert.False(t, result.Created)

	entries, err := svc.List(ctx, draft.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordValidation(t *testing.T) {
	stack, svc := newTestService(t)
	invoice := invoicestest.IssueSent(t, stack, eggs())

	cases := []struct {
		name  string
		input RecordInput
		code  pkgerrors.Code
	}{
		{name: "missing invoice", input: RecordInput{Filename: "a.pdf", Content: pdf}, code: pkgerrors.CodeValidation},
		{name: "missing filename", input: RecordInput{InvoiceID: invoice.ID, Filename: " ", Content: pdf}, code: pkgerrors.CodeValidation},
		{name: "empty content", input: RecordInput{InvoiceID: invoice.ID, Filename: "a.pdf", Content: []byte{}}, code: pkgerrors.CodeValidation},
		{name: "unknown invoice", input: RecordInput{InvoiceID: uuid.New(), Filename: "a.pdf", Content: pdf}, code: pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tc.input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	_, err := svc.Verify(context.Background(), invoice.ID, "missing.pdf", pdf)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
