// Package invoicestest wires the invoice service over a throwaway ledger
// database for the tests of packages built on top of invoices.
package invoicestest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/internal/auditlog"
	"github.com/angelmondragon/gobd-ledger/internal/inventory"
	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

// Admin is a named administrator for tests.
var Admin = types.Actor{Name: "anna", Role: enums.ActorRoleAdmin}

// LedgerConfig returns the production defaults.
func LedgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		DefaultTaxRate:      "19.00",
		AgriculturalTaxRate: "7.80",
		PaymentTermDays:     14,
		FirstReminderFee:    "5.00",
		ReminderFee:         "10.00",
		ReminderIntervalDay: 14,
		Timezone:            "Europe/Berlin",
	}
}

// Stack is a fully wired ledger core.
type Stack struct {
	Client    *db.Client
	Numbers   numbering.Allocator
	Outbox    *outbox.Service
	Audit     auditlog.Service
	Inventory inventory.Service
	Invoices  invoices.Service
	Metrics   *metrics.LedgerMetrics
	Registry  *prometheus.Registry
	Config    config.LedgerConfig
}

// New builds a Stack on a fresh sqlite database.
func New(t *testing.T) *Stack {
	t.Helper()
	return On(t, dbtest.NewSQLite(t))
}

// NewPostgres builds a Stack on a private Postgres schema, skipping the test
// unless LEDGER_DB_DSN is set.
func NewPostgres(t *testing.T) *Stack {
	t.Helper()
	return On(t, dbtest.NewPostgres(t))
}

// On builds a Stack over client.
func On(t *testing.T, client *db.Client) *Stack {
	t.Helper()
	cfg := LedgerConfig()
	registry := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	numbers := numbering.NewSequencer()
	publisher := outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop())

	audit, err := auditlog.NewService(auditlog.NewRepository(client.DB()))
	if err != nil {
		t.Fatalf("audit service: %v", err)
	}
	stock, err := inventory.NewService(inventory.NewRepository(client.DB()), client, numbers, publisher, logger.Nop(), ledgerMetrics, cfg.Location())
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	invoiceSvc, err := invoices.NewService(invoices.NewRepository(client.DB()), client, numbers, stock, audit, publisher, cfg, logger.Nop(), ledgerMetrics)
	if err != nil {
		t.Fatalf("invoice service: %v", err)
	}
	return &Stack{
		Client:    client,
		Numbers:   numbers,
		Outbox:    publisher,
		Audit:     audit,
		Inventory: stock,
		Invoices:  invoiceSvc,
		Metrics:   ledgerMetrics,
		Registry:  registry,
		Config:    cfg,
	}
}

// Item is a product line at the given quantity and unit price.
func Item(productID uuid.UUID, qty int64, unitPrice string) invoices.ItemInput {
	id := productID
	return invoices.ItemInput{
		ProductID:   &id,
		Description: "Honig 500g",
		Quantity:    decimal.NewFromInt(qty),
		UnitPrice:   decimal.RequireFromString(unitPrice),
	}
}

// IssueSent creates a sent RE invoice for a fresh customer dated 2026-01-05.
func IssueSent(t *testing.T, s *Stack, items ...invoices.ItemInput) *models.Invoice {
	t.Helper()
	invoice, err := s.Invoices.Create(context.Background(), invoices.CreateInput{
		CustomerID:  uuid.New(),
		InvoiceDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:      enums.InvoiceStatusSent,
		Items:       items,
		Actor:       Admin,
	})
	if err != nil {
		t.Fatalf("issue invoice: %v", err)
	}
	return invoice
}
