// Package reconciliation matches incoming payment notifications against
// issued invoices and keeps one PaymentCheck row per attempt.
package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
	"github.com/angelmondragon/gobd-ledger/pkg/validation"
)

// Tolerance absorbs rounding differences between bank amounts and totals.
var Tolerance = decimal.RequireFromString("0.01")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger is the slice of the invoice service reconciliation drives.
type Ledger interface {
	LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Invoice, error)
	LockByNumberTx(ctx context.Context, tx *gorm.DB, number string) (*models.Invoice, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, input invoices.TransitionInput) (*models.Invoice, error)
}

type Service interface {
	Check(ctx context.Context, input CheckInput) (*models.PaymentCheck, error)
	Resolve(ctx context.Context, input ResolveInput) (*models.PaymentCheck, error)
	Pending(ctx context.Context, limit int) ([]models.PaymentCheck, error)
}

type CheckInput struct {
	InvoiceNumber string          `json:"invoice_number" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
	Actor         types.Actor     `json:"-"`
}

type ResolveInput struct {
	CheckID uuid.UUID                  `json:"check_id" validate:"required"`
	Action  enums.PaymentResolveAction `json:"action" validate:"required,oneof=mark_paid ignore"`
	Actor   types.Actor                `json:"-"`
}

// Classify compares a received amount with the expected total.
func Classify(received, expected decimal.Decimal) (enums.PaymentCheckStatus, decimal.Decimal) {
	difference := received.Sub(expected)
	if difference.Abs().LessThanOrEqual(Tolerance) {
		return enums.PaymentCheckMatched, difference
	}
	return enums.PaymentCheckMismatch, difference
}

type service struct {
	repo    Repository
	tx      txRunner
	ledger  Ledger
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

func NewService(repo Repository, tx txRunner, ledger Ledger, publisher outboxPublisher, logg *logger.Logger, ledgerMetrics *metrics.LedgerMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment check repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("invoice ledger required")
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
		ledger:  ledger,
		outbox:  publisher,
		logg:    logg,
		metrics: ledgerMetrics,
		now:     time.Now,
	}, nil
}

// Check records exactly one PaymentCheck. A matched amount on a sent invoice
// moves it to paid in the same transaction.
func (s *service) Check(ctx context.Context, input CheckInput) (*models.PaymentCheck, error) {
	input.InvoiceNumber = strings.TrimSpace(input.InvoiceNumber)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not have more than two decimal places").
			WithDetails(map[string]any{"amount": input.Amount.String()})
	}
	if !input.Actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required for payment checks")
	}
	amount := input.Amount

	var check *models.PaymentCheck
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		check = &models.PaymentCheck{
			ID:             uuid.New(),
			InvoiceNumber:  input.InvoiceNumber,
			AmountReceived: amount,
			CheckedBy:      input.Actor.Label(),
			CheckDate:      now,
		}
		if ref := strings.TrimSpace(input.Reference); ref != "" {
			check.Reference = &ref
		}

		invoice, err := s.ledger.LockByNumberTx(ctx, tx, input.InvoiceNumber)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			check.Status = enums.PaymentCheckNotFound
			check.Notes = note(fmt.Sprintf("Rechnung %s nicht gefunden", input.InvoiceNumber))
		case err != nil:
			return err
		default:
			if err := s.classify(ctx, tx, check, invoice, input.Actor); err != nil {
				return err
			}
		}

		if err := s.repo.WithTx(tx).Create(ctx, check); err != nil {
			return mutationError(err, "persist payment check")
		}

		event := payloads.PaymentCheckedEvent{
			CheckID:        check.ID,
			InvoiceNumber:  check.InvoiceNumber,
			InvoiceID:      check.InvoiceID,
			AmountReceived: check.AmountReceived,
			Status:         check.Status,
		}
		if check.Difference.Valid {
			diff := check.Difference.Decimal
			event.Difference = &diff
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentChecked,
			AggregateType: enums.AggregatePaymentCheck,
			AggregateID:   check.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data:          event,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPaymentCheck(check.Status.String())
	logCtx := s.logg.WithInvoiceNumber(ctx, check.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"status": check.Status.String(),
		"amount": check.AmountReceived.StringFixed(2),
	})
	if check.Status.NeedsReview() {
		s.logg.Warn(logCtx, "payment.checked")
	} else {
		s.logg.Info(logCtx, "payment.checked")
	}
	return check, nil
}

// classify fills the outcome for a known invoice.
func (s *service) classify(ctx context.Context, tx *gorm.DB, check *models.PaymentCheck, invoice *models.Invoice, actor types.Actor) error {
	invoiceID := invoice.ID
	check.InvoiceID = &invoiceID
	check.ExpectedAmount = decimal.NewNullDecimal(invoice.Total)

	if invoice.Status == enums.InvoiceStatusPaid {
		matched, err := s.repo.WithTx(tx).CountMatched(ctx, invoice.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count matched payment checks")
		}
		if matched > 0 {
			check.Status = enums.PaymentCheckDuplicate
			check.Difference = decimal.NewNullDecimal(check.AmountReceived.Sub(invoice.Total))
			check.Notes = note(fmt.Sprintf("Rechnung bereits bezahlt (Status: %s)", invoice.Status))
			return nil
		}
	}

	status, difference := Classify(check.AmountReceived, invoice.Total)
	check.Difference = decimal.NewNullDecimal(difference)
	if status == enums.PaymentCheckMismatch {
		check.Status = status
		check.Notes = note(fmt.Sprintf("Betragsdifferenz: %s EUR (erwartet: %s EUR, erhalten: %s EUR)",
			difference.StringFixed(2), invoice.Total.StringFixed(2), check.AmountReceived.StringFixed(2)))
		return nil
	}

	switch invoice.Status {
	case enums.InvoiceStatusSent:
		if _, err := s.ledger.TransitionTx(ctx, tx, invoices.TransitionInput{
			InvoiceID: invoice.ID,
			Target:    enums.InvoiceStatusPaid,
			Actor:     actor,
			Reason:    "payment check " + check.ID.String(),
		}); err != nil {
			return err
		}
		check.Status = enums.PaymentCheckMatched
		check.Notes = note("Zahlung zugeordnet, Rechnung als bezahlt markiert")
	case enums.InvoiceStatusPaid:
		check.Status = enums.PaymentCheckMatched
		check.Notes = note("Zahlung zugeordnet, Rechnung war bereits als bezahlt markiert")
	default:
		check.Status = enums.PaymentCheckMismatch
		check.Notes = note(fmt.Sprintf("Betrag stimmt, Rechnung ist aber nicht zahlbar (Status: %s)", invoice.Status))
	}
	return nil
}

// Resolve closes a check that needed review. mark_paid moves the invoice to
// paid through the status machine unless it already is.
func (s *service) Resolve(ctx context.Context, input ResolveInput) (*models.PaymentCheck, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if !input.Actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required to resolve payment checks")
	}
	if input.Actor.Role == enums.ActorRoleReseller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "resellers cannot resolve payment checks")
	}

	var check *models.PaymentCheck
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, input.CheckID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment check not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment check")
		}
		if locked.Resolved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment check already resolved")
		}
		if !locked.Status.NeedsReview() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s checks need no review", locked.Status))
		}

		var suffix string
		switch input.Action {
		case enums.PaymentResolveMarkPaid:
			if locked.InvoiceID == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "payment check has no invoice assigned")
			}
			invoice, err := s.ledger.LockTx(ctx, tx, *locked.InvoiceID)
			if err != nil {
				return err
			}
			if invoice.Status != enums.InvoiceStatusPaid {
				if _, err := s.ledger.TransitionTx(ctx, tx, invoices.TransitionInput{
					InvoiceID: invoice.ID,
					Target:    enums.InvoiceStatusPaid,
					Actor:     input.Actor,
					Reason:    "payment check " + locked.ID.String() + " resolved manually",
				}); err != nil {
					return err
				}
			}
			suffix = "Manuell als bezahlt markiert"
		case enums.PaymentResolveIgnore:
			suffix = "Ignoriert/Bereits behandelt"
		}

		notes := suffix
		if locked.Notes != nil && *locked.Notes != "" {
			notes = *locked.Notes + " | " + suffix
		}
		now := s.now().UTC()
		by := input.Actor.Label()
		if err := repo.MarkResolved(ctx, locked.ID, notes, by, now); err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment check resolved concurrently")
			}
			return mutationError(err, "resolve payment check")
		}
		locked.Resolved = true
		locked.ResolvedAt = &now
		locked.ResolvedBy = &by
		locked.Notes = &notes
		check = locked

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentResolved,
			AggregateType: enums.AggregatePaymentCheck,
			AggregateID:   locked.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data: payloads.PaymentResolvedEvent{
				CheckID:   locked.ID,
				InvoiceID: locked.InvoiceID,
				Action:    input.Action,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithInvoiceNumber(ctx, check.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())
	s.logg.Info(s.logg.WithField(logCtx, "action", string(input.Action)), "payment.resolved")
	return check, nil
}

func (s *service) Pending(ctx context.Context, limit int) ([]models.PaymentCheck, error) {
	checks, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payment checks")
	}
	return checks, nil
}

func note(text string) *string {
	return &text
}

func mutationError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsCheckViolation(err) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, action)
	}
	if db.IsSerializationFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
