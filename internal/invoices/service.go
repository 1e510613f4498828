package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/internal/auditlog"
	"github.com/angelmondragon/gobd-ledger/internal/fingerprint"
	"github.com/angelmondragon/gobd-ledger/internal/inventory"
	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockLedger is the part of the inventory service invoices drive.
type StockLedger interface {
	DeductForSale(ctx context.Context, tx *gorm.DB, pool enums.StockPool, customerID, productID uuid.UUID, qty int) error
	ReinstateInvoice(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, items []models.LineItem) error
}

// StatusRecorder appends status log rows.
type StatusRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input auditlog.RecordInput) (*models.InvoiceStatusLog, error)
}

// Service owns the invoice aggregate: issuance, the status machine, draft
// deletion and fingerprint verification. The *Tx variants join a caller's
// transaction so other ledger operations can compose them.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Invoice, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Invoice, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Invoice, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.Invoice, error)
	Delete(ctx context.Context, input DeleteInput) error
	Verify(ctx context.Context, invoiceID uuid.UUID) (*VerifyResult, error)
	VerifyByNumber(ctx context.Context, number string) (*VerifyResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	GetByNumber(ctx context.Context, number string) (*models.Invoice, error)
	LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Invoice, error)
	LockByNumberTx(ctx context.Context, tx *gorm.DB, number string) (*models.Invoice, error)
	AppendNoteTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, note string) error
}

// CreateInput describes a document to issue. Zero values take the defaults:
// prefix RE, status draft, tax model standard, customer type end customer,
// today's date and the configured rate and payment term.
type CreateInput struct {
	Prefix        enums.DocumentPrefix
	CustomerID    uuid.UUID
	CustomerType  enums.CustomerType
	TaxModel      enums.TaxModel
	TaxRate       decimal.NullDecimal
	InvoiceDate   time.Time
	DueDate       *time.Time
	Status        enums.InvoiceStatus
	Notes         string
	PaymentMethod string
	Items         []ItemInput
	Actor         types.Actor
	// Reason is written to the initial status log row.
	Reason string
	// ReversalOf links a STORNO document to its original. Only reversals may
	// carry negative quantities.
	ReversalOf *uuid.UUID
	// Totals replaces the computed totals; reversals mirror the original's.
	Totals *Totals
}

// ItemInput is one position. StockPool defaults to the pool of the customer
// type when a product is set, and to none otherwise.
type ItemInput struct {
	ProductID   *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.NullDecimal
	StockPool   enums.StockPool
}

type TransitionInput struct {
	InvoiceID     uuid.UUID
	Target        enums.InvoiceStatus
	Actor         types.Actor
	Reason        string
	PaymentMethod string
}

type DeleteInput struct {
	InvoiceID uuid.UUID
	Actor     types.Actor
}

// VerifyResult is the outcome of recomputing a fingerprint.
type VerifyResult struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Valid         bool      `json:"valid"`
	Stored        string    `json:"stored"`
	Computed      string    `json:"computed"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Err converts a failed verification into an integrity error for callers that
// must refuse to continue with a tampered document.
func (r VerifyResult) Err() error {
	if r.Valid {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeIntegrity, "invoice fingerprint mismatch").
		WithDetails(map[string]any{"invoice_number": r.InvoiceNumber})
}

type service struct {
	repo    Repository
	tx      txRunner
	numbers numbering.Allocator
	stock   StockLedger
	audit   StatusRecorder
	outbox  outboxPublisher
	cfg     config.LedgerConfig
	loc     *time.Location
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// NewService wires the invoice service.
func NewService(
	repo Repository,
	tx txRunner,
	numbers numbering.Allocator,
	stock StockLedger,
	audit StatusRecorder,
	publisher outboxPublisher,
	cfg config.LedgerConfig,
	logg *logger.Logger,
	ledgerMetrics *metrics.LedgerMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("number allocator required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if audit == nil {
		return nil, fmt.Errorf("status recorder required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		numbers: numbers,
		stock:   stock,
		audit:   audit,
		outbox:  publisher,
		cfg:     cfg,
		loc:     cfg.Location(),
		logg:    logg,
		metrics: ledgerMetrics,
		now:     time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Invoice, error) {
	var created *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invoice, err := s.CreateTx(ctx, tx, input)
		if err != nil {
			return err
		}
		created = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateTx issues a document inside tx. The fingerprint is computed over the
// in-memory invoice and items before anything is written.
func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Invoice, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice creation requires a transaction")
	}
	input, err := s.normalizeCreate(input)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx, tx, input.Prefix, input.InvoiceDate)
	if err != nil {
		return nil, err
	}

	invoice, items, err := s.build(number, input)
	if err != nil {
		return nil, err
	}
	seal, err := fingerprint.Compute(fingerprint.FromInvoice(*invoice, items))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute invoice fingerprint")
	}
	invoice.Fingerprint = seal

	if err := s.repo.WithTx(tx).Create(ctx, invoice, items); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "invoice number already issued")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist invoice")
	}

	for _, item := range items {
		if item.ProductID == nil || !item.StockPool.Tracked() {
			continue
		}
		qty, err := inventory.WholeQuantity(item.Quantity)
		if err != nil {
			return nil, err
		}
		if err := s.stock.DeductForSale(ctx, tx, item.StockPool, invoice.CustomerID, *item.ProductID, qty); err != nil {
			return nil, err
		}
	}

	reason := input.Reason
	if reason == "" {
		reason = "issued"
	}
	if _, err := s.audit.Record(ctx, tx, auditlog.RecordInput{
		InvoiceID: invoice.ID,
		NewStatus: invoice.Status,
		Actor:     input.Actor,
		Reason:    reason,
	}); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoiceCreated,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         outbox.ActorFrom(input.Actor),
		Data: payloads.InvoiceCreatedEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			CustomerID:    invoice.CustomerID,
			Status:        invoice.Status,
			TaxModel:      invoice.TaxModel,
			Total:         invoice.Total,
			Fingerprint:   invoice.Fingerprint,
			ReversalOfID:  invoice.ReversalOfID,
		},
	}); err != nil {
		return nil, err
	}

	invoice.LineItems = items
	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"status": invoice.Status.String(),
		"total":  invoice.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "invoice.created")
	return invoice, nil
}

func (s *service) normalizeCreate(input CreateInput) (CreateInput, error) {
	if input.CustomerID == uuid.Nil {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !input.Actor.Valid() {
		return input, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required to issue invoices")
	}
	if len(input.Items) == 0 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}

	if input.Prefix == "" {
		input.Prefix = enums.PrefixInvoice
	}
	if !input.Prefix.IsInvoicePrefix() {
		return input, pkgerrors.Validationf("prefix %s cannot number an invoice", input.Prefix)
	}
	if (input.Prefix == enums.PrefixReversal) != (input.ReversalOf != nil) {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "the STORNO prefix is reserved for reversal documents")
	}

	if input.Status == "" {
		input.Status = enums.InvoiceStatusDraft
	}
	if input.Status == enums.InvoiceStatusCancelled || !input.Status.IsValid() {
		return input, pkgerrors.Validationf("invoices cannot be issued as %q", input.Status)
	}
	if input.CustomerType == "" {
		input.CustomerType = enums.CustomerTypeEndCustomer
	}
	if !input.CustomerType.IsValid() {
		return input, pkgerrors.Validationf("invalid customer type %q", input.CustomerType)
	}
	if input.TaxModel == "" {
		input.TaxModel = enums.TaxModelStandard
	}
	if !input.TaxModel.IsValid() {
		return input, pkgerrors.Validationf("invalid tax model %q", input.TaxModel)
	}
	if !input.TaxRate.Valid {
		input.TaxRate = decimal.NewNullDecimal(s.defaultRate(input.TaxModel))
	}
	if err := validateRate(input.TaxRate.Decimal); err != nil {
		return input, err
	}

	if input.InvoiceDate.IsZero() {
		input.InvoiceDate = numbering.Day(s.now(), s.loc)
	} else {
		input.InvoiceDate = calendarDay(input.InvoiceDate)
	}
	if input.DueDate != nil {
		due := calendarDay(*input.DueDate)
		if due.Before(input.InvoiceDate) {
			return input, pkgerrors.New(pkgerrors.CodeValidation, "due date precedes invoice date")
		}
		input.DueDate = &due
	} else if input.Status != enums.InvoiceStatusPaid && s.cfg.PaymentTermDays > 0 {
		due := input.InvoiceDate.AddDate(0, 0, s.cfg.PaymentTermDays)
		input.DueDate = &due
	}
	return input, nil
}

func (s *service) defaultRate(model enums.TaxModel) decimal.Decimal {
	switch model {
	case enums.TaxModelSmallBusiness:
		return decimal.Zero
	case enums.TaxModelAgricultural:
		return s.cfg.AgriculturalTax()
	default:
		return s.cfg.DefaultTax()
	}
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(hundred) {
		return pkgerrors.Validationf("tax rate %s out of range", rate.String())
	}
	return nil
}

// build assembles the invoice and its items in memory.
func (s *service) build(number string, input CreateInput) (*models.Invoice, []models.LineItem, error) {
	invoice := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: number,
		CustomerID:    input.CustomerID,
		InvoiceDate:   input.InvoiceDate,
		DueDate:       input.DueDate,
		Status:        input.Status,
		TaxRate:       input.TaxRate.Decimal.Round(2),
		TaxModel:      input.TaxModel,
		CustomerType:  input.CustomerType,
		ReversalOfID:  input.ReversalOf,
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		invoice.Notes = &notes
	}
	if method := strings.TrimSpace(input.PaymentMethod); method != "" {
		invoice.PaymentMethod = &method
	}

	items := make([]models.LineItem, 0, len(input.Items))
	for i, in := range input.Items {
		item, err := s.buildItem(invoice, in, i+1, input.ReversalOf != nil)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}

	if input.Totals != nil {
		input.Totals.Apply(invoice)
	} else {
		CalculateTotals(*invoice, items).Apply(invoice)
	}
	return invoice, items, nil
}

func (s *service) buildItem(invoice *models.Invoice, in ItemInput, position int, reversal bool) (models.LineItem, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return models.LineItem{}, pkgerrors.Validationf("line item %d needs a description", position)
	}
	if in.Quantity.IsZero() || (in.Quantity.IsNegative() && !reversal) {
		return models.LineItem{}, pkgerrors.Validationf("line item %d quantity must be greater than zero", position)
	}
	if in.UnitPrice.IsNegative() {
		return models.LineItem{}, pkgerrors.Validationf("line item %d unit price must not be negative", position)
	}
	if in.TaxRate.Valid {
		if err := validateRate(in.TaxRate.Decimal); err != nil {
			return models.LineItem{}, err
		}
		in.TaxRate.Decimal = in.TaxRate.Decimal.Round(2)
	}

	pool := in.StockPool
	if in.ProductID == nil {
		pool = enums.StockPoolNone
	} else {
		if _, err := inventory.WholeQuantity(in.Quantity); err != nil {
			return models.LineItem{}, err
		}
		if pool == "" {
			pool = invoice.CustomerType.StockPool()
		}
	}
	if !pool.IsValid() {
		return models.LineItem{}, pkgerrors.Validationf("invalid stock pool %q", pool)
	}
	if reversal && pool.Tracked() {
		return models.LineItem{}, pkgerrors.New(pkgerrors.CodeValidation, "reversal items cannot move stock")
	}

	quantity := in.Quantity.Round(2)
	unitPrice := in.UnitPrice.Round(2)
	return models.LineItem{
		ID:          uuid.New(),
		InvoiceID:   invoice.ID,
		Position:    position,
		ProductID:   in.ProductID,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Total:       LineTotal(quantity, unitPrice),
		TaxRate:     in.TaxRate,
		StockPool:   pool,
	}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Invoice, error) {
	var updated *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invoice, err := s.TransitionTx(ctx, tx, input)
		if err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TransitionTx moves the locked invoice to input.Target, records exactly one
// status log row and, when entering cancelled, reinstates the invoice's stock.
// Cancellation is the only place stock comes back.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.Invoice, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status changes require a transaction")
	}
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}

	repo := s.repo.WithTx(tx)
	invoice, err := repo.LockByID(ctx, input.InvoiceID)
	if err != nil {
		return nil, lookupError(err)
	}
	if err := CheckTransition(input.Actor, *invoice, input.Target); err != nil {
		return nil, err
	}

	from := invoice.Status
	now := s.now().UTC()
	updates := map[string]any{
		"status":     input.Target,
		"updated_at": now,
	}
	if method := strings.TrimSpace(input.PaymentMethod); method != "" && input.Target == enums.InvoiceStatusPaid {
		updates["payment_method"] = method
		invoice.PaymentMethod = &method
	}
	if err := repo.UpdateInvoice(ctx, invoice.ID, updates); err != nil {
		return nil, mutationError(err, "update invoice status")
	}
	invoice.Status = input.Target
	invoice.UpdatedAt = now

	entry, err := s.audit.Record(ctx, tx, auditlog.RecordInput{
		InvoiceID: invoice.ID,
		OldStatus: &from,
		NewStatus: input.Target,
		Actor:     input.Actor,
		Reason:    input.Reason,
	})
	if err != nil {
		return nil, err
	}

	if input.Target == enums.InvoiceStatusCancelled {
		if err := s.stock.ReinstateInvoice(ctx, tx, invoice, invoice.LineItems); err != nil {
			return nil, err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoiceStatusChanged,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         outbox.ActorFrom(input.Actor),
		Data: payloads.InvoiceStatusChangedEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			OldStatus:     &from,
			NewStatus:     input.Target,
			Reason:        strings.TrimSpace(input.Reason),
			ChangedAt:     entry.ChangedAt,
		},
	}); err != nil {
		return nil, err
	}

	s.metrics.IncTransition(from.String(), input.Target.String())
	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"from": from.String(),
		"to":   input.Target.String(),
	})
	s.logg.Info(logCtx, "invoice.status_changed")
	return invoice, nil
}

// Delete removes a draft. Stock deducted at creation goes back first.
func (s *service) Delete(ctx context.Context, input DeleteInput) error {
	if input.InvoiceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	if !input.Actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required to delete invoices")
	}
	if input.Actor.Role == enums.ActorRoleReseller {
		return pkgerrors.New(pkgerrors.CodeForbidden, "resellers cannot delete invoices")
	}

	var number string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := repo.LockByID(ctx, input.InvoiceID)
		if err != nil {
			return lookupError(err)
		}
		if invoice.Status != enums.InvoiceStatusDraft {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only draft invoices can be deleted").
				WithDetails(map[string]any{
					"invoice_number": invoice.InvoiceNumber,
					"status":         invoice.Status.String(),
				})
		}
		if err := s.stock.ReinstateInvoice(ctx, tx, invoice, invoice.LineItems); err != nil {
			return err
		}
		if err := repo.Delete(ctx, invoice.ID); err != nil {
			return mutationError(err, "delete draft invoice")
		}
		number = invoice.InvoiceNumber
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceDeleted,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data: payloads.InvoiceDeletedEvent{
				InvoiceID:     invoice.ID,
				InvoiceNumber: invoice.InvoiceNumber,
			},
		})
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithInvoiceNumber(ctx, number)
	s.logg.Info(s.logg.WithActor(logCtx, input.Actor.Label()), "invoice.deleted")
	return nil
}

func (s *service) Verify(ctx context.Context, invoiceID uuid.UUID) (*VerifyResult, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, lookupError(err)
	}
	return s.verify(ctx, invoice)
}

func (s *service) VerifyByNumber(ctx context.Context, number string) (*VerifyResult, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice number is required")
	}
	invoice, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, lookupError(err)
	}
	return s.verify(ctx, invoice)
}

// verify recomputes the fingerprint from persisted state. Every mismatch is
// logged and counted, but only the first one per invoice is published. The
// stored value is never rewritten.
func (s *service) verify(ctx context.Context, invoice *models.Invoice) (*VerifyResult, error) {
	valid, computed, err := fingerprint.Verify(fingerprint.FromInvoice(*invoice, invoice.LineItems), invoice.Fingerprint)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recompute invoice fingerprint")
	}
	result := &VerifyResult{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Valid:         valid,
		Stored:        invoice.Fingerprint,
		Computed:      computed,
		CheckedAt:     s.now().UTC(),
	}
	if valid {
		return result, nil
	}

	s.metrics.IncFingerprintMismatch()
	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	logCtx = s.logg.WithFields(logCtx, map[string]any{"stored": result.Stored, "computed": result.Computed})
	s.logg.Warn(logCtx, "invoice.tamper_detected")

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceTampered,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         outbox.ActorFrom(types.SystemActor("")),
			Data: payloads.InvoiceTamperedEvent{
				InvoiceID:     invoice.ID,
				InvoiceNumber: invoice.InvoiceNumber,
				Stored:        result.Stored,
				Computed:      result.Computed,
				DetectedAt:    result.CheckedAt,
			},
		})
	}); err != nil {
		s.logg.Error(logCtx, "failed to publish tamper event", err)
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	return invoice, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice number is required")
	}
	invoice, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, lookupError(err)
	}
	return invoice, nil
}

func (s *service) LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Invoice, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "row locks require a transaction")
	}
	invoice, err := s.repo.WithTx(tx).LockByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	return invoice, nil
}

func (s *service) LockByNumberTx(ctx context.Context, tx *gorm.DB, number string) (*models.Invoice, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "row locks require a transaction")
	}
	invoice, err := s.repo.WithTx(tx).LockByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, lookupError(err)
	}
	return invoice, nil
}

// AppendNoteTx adds a line to the invoice notes. Notes are outside the
// fingerprint.
func (s *service) AppendNoteTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	invoice, err := s.LockTx(ctx, tx, id)
	if err != nil {
		return err
	}
	notes := note
	if invoice.Notes != nil && strings.TrimSpace(*invoice.Notes) != "" {
		notes = strings.TrimSpace(*invoice.Notes) + "\n" + note
	}
	if err := s.repo.WithTx(tx).UpdateInvoice(ctx, id, map[string]any{
		"notes":      notes,
		"updated_at": s.now().UTC(),
	}); err != nil {
		return mutationError(err, "append invoice note")
	}
	return nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lookupError(err error) error {
	if isNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
}

func mutationError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if isNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	if db.IsTriggerRejection(err) {
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "ledger row is protected")
	}
	if db.IsSerializationFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
