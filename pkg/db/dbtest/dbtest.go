// Package dbtest opens throwaway ledger databases for package tests.
package dbtest

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db"
)

// schema mirrors pkg/migrate/migrations with sqlite column types. Triggers are
// Postgres-only and are exercised against a real database instead.
var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		package_size TEXT,
		lot_number TEXT,
		stock_qty INTEGER NOT NULL DEFAULT 0 CHECK (stock_qty >= 0),
		price TEXT NOT NULL,
		reseller_price TEXT,
		tax_rate TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		invoice_date DATE NOT NULL,
		due_date DATE,
		status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'sent', 'paid', 'cancelled')),
		subtotal TEXT NOT NULL,
		tax_rate TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		total TEXT NOT NULL,
		tax_model TEXT NOT NULL,
		customer_type TEXT NOT NULL,
		notes TEXT,
		payment_method TEXT,
		fingerprint TEXT NOT NULL,
		reversal_of_id TEXT REFERENCES invoices(id),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_invoices_number ON invoices (invoice_number)`,
	`CREATE TABLE line_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		position INTEGER NOT NULL DEFAULT 0,
		product_id TEXT REFERENCES products(id),
		description TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		tax_rate TEXT,
		stock_pool TEXT NOT NULL DEFAULT 'none'
	)`,
	`CREATE TABLE invoice_status_log (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		old_status TEXT,
		new_status TEXT NOT NULL,
		changed_at DATETIME NOT NULL,
		changed_by TEXT NOT NULL,
		reason TEXT
	)`,
	`CREATE TABLE invoice_pdf_archive (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		pdf_filename TEXT NOT NULL,
		pdf_hash TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		archived_by TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_invoice_pdf_archive_file ON invoice_pdf_archive (invoice_id, pdf_filename)`,
	`CREATE TABLE document_sequences (
		prefix TEXT NOT NULL,
		day TEXT NOT NULL,
		last_value INTEGER NOT NULL,
		PRIMARY KEY (prefix, day)
	)`,
	`CREATE TABLE delivery_notes (
		id TEXT PRIMARY KEY,
		delivery_note_number TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL,
		delivery_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'delivered',
		show_tax BOOLEAN NOT NULL DEFAULT 0,
		notes TEXT,
		created_by TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE delivery_note_items (
		id TEXT PRIMARY KEY,
		delivery_note_id TEXT NOT NULL REFERENCES delivery_notes(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		description TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE consignment_stock (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		quantity_sold INTEGER NOT NULL DEFAULT 0 CHECK (quantity_sold >= 0),
		unit_price TEXT NOT NULL,
		last_delivery_note_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_consignment_customer_product ON consignment_stock (customer_id, product_id)`,
	`CREATE TABLE stock_adjustments (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		old_stock INTEGER NOT NULL,
		new_stock INTEGER NOT NULL CHECK (new_stock >= 0),
		adjustment_type TEXT NOT NULL,
		reason TEXT NOT NULL,
		adjusted_by TEXT NOT NULL,
		adjusted_at DATETIME NOT NULL,
		document_number TEXT UNIQUE
	)`,
	`CREATE TABLE payment_checks (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		invoice_id TEXT,
		amount_received TEXT NOT NULL,
		expected_amount TEXT,
		difference TEXT,
		status TEXT NOT NULL,
		reference TEXT,
		notes TEXT,
		checked_by TEXT NOT NULL,
		check_date DATETIME NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT 0,
		resolved_at DATETIME,
		resolved_by TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE reminders (
		id TEXT PRIMARY KEY,
		reminder_number TEXT NOT NULL UNIQUE,
		invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		reminder_level INTEGER NOT NULL,
		reminder_date DATETIME NOT NULL,
		sent_date DATETIME,
		sent_via TEXT,
		reminder_fee TEXT NOT NULL,
		notes TEXT,
		created_by TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_reminders_invoice_level ON reminders (invoice_id, reminder_level)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
}

// NewSQLite returns a client over a private in-memory database carrying the
// full ledger schema. A single connection keeps concurrent test transactions
// strictly serialized, the way row locks serialize them in Postgres.
func NewSQLite(t *testing.T) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return db.FromGorm(conn)
}

// NewMock returns a gorm connection speaking the Postgres dialect over
// sqlmock, for asserting the exact SQL of locking and upsert statements.
func NewMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })

	conn, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open gorm over sqlmock: %v", err)
	}
	return conn, mock
}

// SQLDB exposes the raw handle of a client for assertions.
func SQLDB(t *testing.T, client *db.Client) *sql.DB {
	t.Helper()
	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	return sqlDB
}
