// Package ledger wires the ledger services over one database client. The
// process entrypoints build a Services value once and hand its members to
// the HTTP router and the cron jobs.
package ledger

import (
	"fmt"

	"github.com/angelmondragon/gobd-ledger/internal/archive"
	"github.com/angelmondragon/gobd-ledger/internal/auditlog"
	"github.com/angelmondragon/gobd-ledger/internal/consignment"
	"github.com/angelmondragon/gobd-ledger/internal/deliverynotes"
	"github.com/angelmondragon/gobd-ledger/internal/dispatch"
	"github.com/angelmondragon/gobd-ledger/internal/inventory"
	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/internal/pos"
	"github.com/angelmondragon/gobd-ledger/internal/reconciliation"
	"github.com/angelmondragon/gobd-ledger/internal/reminders"
	"github.com/angelmondragon/gobd-ledger/internal/reversal"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
)

// Params configure New. Renderer and Mailer are optional; without both the
// dispatch service is left nil.
type Params struct {
	DB       *db.Client
	Config   config.LedgerConfig
	Logger   *logger.Logger
	Metrics  *metrics.LedgerMetrics
	Renderer dispatch.Renderer
	Mailer   dispatch.Mailer
}

// Services is the wired ledger.
type Services struct {
	Outbox         *outbox.Service
	OutboxRepo     *outbox.Repository
	Audit          auditlog.Service
	Inventory      inventory.Service
	Invoices       invoices.Service
	Reversal       reversal.Service
	Reconciliation reconciliation.Service
	Archive        archive.Service
	Dispatch       dispatch.Service
	Reminders      reminders.Service
	POS            pos.Service
	DeliveryNotes  deliverynotes.Service
	Consignment    consignment.Service
}

func New(params Params) (*Services, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	conn := params.DB.DB()
	cfg := params.Config
	loc := cfg.Location()
	numbers := numbering.NewSequencer()

	outboxRepo := outbox.NewRepository(conn)
	publisher := outbox.NewService(outboxRepo, logg)

	audit, err := auditlog.NewService(auditlog.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	stock, err := inventory.NewService(inventory.NewRepository(conn), params.DB, numbers, publisher, logg, params.Metrics, loc)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	invoiceSvc, err := invoices.NewService(invoices.NewRepository(conn), params.DB, numbers, stock, audit, publisher, cfg, logg, params.Metrics)
	if err != nil {
		return nil, fmt.Errorf("invoices: %w", err)
	}
	reversalSvc, err := reversal.NewService(params.DB, invoiceSvc, publisher, logg, params.Metrics, loc)
	if err != nil {
		return nil, fmt.Errorf("reversal: %w", err)
	}
	reconciliationSvc, err := reconciliation.NewService(reconciliation.NewRepository(conn), params.DB, invoiceSvc, publisher, logg, params.Metrics)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: %w", err)
	}
	archiveSvc, err := archive.NewService(archive.NewRepository(conn), params.DB, invoiceSvc, publisher, logg)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	reminderSvc, err := reminders.NewService(reminders.NewRepository(conn), params.DB, invoiceSvc, numbers, publisher, cfg, logg)
	if err != nil {
		return nil, fmt.Errorf("reminders: %w", err)
	}
	posSvc, err := pos.NewService(stock, invoiceSvc, cfg, logg)
	if err != nil {
		return nil, fmt.Errorf("pos: %w", err)
	}
	notes, err := deliverynotes.NewService(deliverynotes.NewRepository(conn), params.DB, stock, numbers, publisher, logg, loc)
	if err != nil {
		return nil, fmt.Errorf("delivery notes: %w", err)
	}
	settlement, err := consignment.NewService(stock, invoiceSvc, cfg, logg)
	if err != nil {
		return nil, fmt.Errorf("consignment: %w", err)
	}

	services := &Services{
		Outbox:         publisher,
		OutboxRepo:     outboxRepo,
		Audit:          audit,
		Inventory:      stock,
		Invoices:       invoiceSvc,
		Reversal:       reversalSvc,
		Reconciliation: reconciliationSvc,
		Archive:        archiveSvc,
		Reminders:      reminderSvc,
		POS:            posSvc,
		DeliveryNotes:  notes,
		Consignment:    settlement,
	}
	if params.Renderer != nil && params.Mailer != nil {
		services.Dispatch, err = dispatch.NewService(invoiceSvc, params.Renderer, params.Mailer, archiveSvc, logg)
		if err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
	}
	return services, nil
}
