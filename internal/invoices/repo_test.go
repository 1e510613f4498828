package invoices

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gobd-ledger/pkg/db/dbtest"
)

func TestLockByIDLocksOnlyTheInvoiceRow(t *testing.T) {
	conn, mock := dbtest.NewMock(t)
	repo := NewRepository(conn)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1 ORDER BY "invoices"."id" LIMIT .+ FOR UPDATE$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_number", "status"}).AddRow(id.String(), "RE-20260105-0001", "sent"))
	mock.ExpectQuery(`SELECT \* FROM "line_items" WHERE invoice_id = \$1 ORDER BY position ASC,id ASC$`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id", "position", "description"}).
			AddRow(uuid.NewString(), id.String(), 1, "Honig 500g"))

	invoice, err := repo.LockByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "RE-20260105-0001", invoice.InvoiceNumber)
	require.Len(t, invoice.LineItems, 1)
	assert.Equal(t, "Honig 500g", invoice.LineItems[0].Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInvoiceGuardRunsNoSQL(t *testing.T) {
	conn, mock := dbtest.NewMock(t)
	repo := NewRepository(conn)

	err := repo.UpdateInvoice(context.Background(), uuid.New(), map[string]any{"fingerprint": "00"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
