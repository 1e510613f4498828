// Package reminders issues dunning notices for overdue sent invoices.
package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
	"github.com/angelmondragon/gobd-ledger/pkg/validation"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InvoiceLocker is the slice of the invoice service reminders need.
type InvoiceLocker interface {
	LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Invoice, error)
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Reminder, error)
	MarkSent(ctx context.Context, input MarkSentInput) error
	List(ctx context.Context, invoiceID uuid.UUID) ([]models.Reminder, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Overdue, error)
}

type CreateInput struct {
	InvoiceID uuid.UUID   `json:"invoice_id" validate:"required"`
	Notes     string      `json:"notes"`
	Actor     types.Actor `json:"-"`
}

type MarkSentInput struct {
	ReminderID uuid.UUID `json:"reminder_id" validate:"required"`
	Via        string    `json:"via" validate:"required,oneof=pdf email post"`
}

// Overdue is a sent invoice past its due date with its dunning history.
type Overdue struct {
	Invoice      models.Invoice
	LastLevel    int
	LastReminder *time.Time
}

// ReminderDue reports whether the next notice may go out on asOf: at once
// when none was sent yet, otherwise intervalDays after the last one.
func (o Overdue) ReminderDue(asOf time.Time, intervalDays int) bool {
	if o.LastReminder == nil {
		return true
	}
	next := calendarDay(*o.LastReminder).AddDate(0, 0, intervalDays)
	return !calendarDay(asOf).Before(next)
}

// AmountDue is the invoice total plus the reminder fee.
func AmountDue(invoice models.Invoice, reminder models.Reminder) string {
	return invoice.Total.Add(reminder.ReminderFee).StringFixed(2)
}

type service struct {
	repo    Repository
	tx      txRunner
	ledger  InvoiceLocker
	numbers numbering.Allocator
	outbox  outboxPublisher
	cfg     config.LedgerConfig
	loc     *time.Location
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, tx txRunner, ledger InvoiceLocker, numbers numbering.Allocator, publisher outboxPublisher, cfg config.LedgerConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reminder repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("invoice locker required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("number allocator required")
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
		numbers: numbers,
		outbox:  publisher,
		cfg:     cfg,
		loc:     cfg.Location(),
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Create issues the next reminder level for a sent invoice. The invoice row
// lock serializes concurrent reminders for the same invoice.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Reminder, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if !input.Actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required to create reminders")
	}
	if input.Actor.Role == enums.ActorRoleReseller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "resellers cannot create reminders")
	}

	var reminder *models.Reminder
	var number string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invoice, err := s.ledger.LockTx(ctx, tx, input.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != enums.InvoiceStatusSent {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reminders are only issued for sent, unpaid invoices").
				WithDetails(map[string]any{
					"invoice_number": invoice.InvoiceNumber,
					"status":         invoice.Status.String(),
				})
		}
		number = invoice.InvoiceNumber

		repo := s.repo.WithTx(tx)
		level := 1
		latest, err := repo.Latest(ctx, invoice.ID)
		switch {
		case err == nil:
			level = latest.ReminderLevel + 1
		case !isNotFound(err):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load previous reminder")
		}

		now := s.now()
		reminderNumber, err := s.numbers.Next(ctx, tx, enums.PrefixReminder, numbering.Day(now, s.loc))
		if err != nil {
			return err
		}
		reminder = &models.Reminder{
			ID:             uuid.New(),
			ReminderNumber: reminderNumber,
			InvoiceID:      invoice.ID,
			ReminderLevel:  level,
			ReminderDate:   now.UTC(),
			ReminderFee:    s.cfg.ReminderFeeFor(level),
			CreatedBy:      input.Actor.Label(),
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			reminder.Notes = &notes
		}
		if err := repo.Create(ctx, reminder); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "reminder level already issued")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist reminder")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReminderCreated,
			AggregateType: enums.AggregateReminder,
			AggregateID:   reminder.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data: payloads.ReminderCreatedEvent{
				ReminderID:     reminder.ID,
				ReminderNumber: reminder.ReminderNumber,
				InvoiceID:      invoice.ID,
				Level:          level,
				Fee:            reminder.ReminderFee,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithInvoiceNumber(ctx, number)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"reminder_number": reminder.ReminderNumber,
		"level":           reminder.ReminderLevel,
		"fee":             reminder.ReminderFee.StringFixed(2),
	})
	s.logg.Info(logCtx, "reminder.created")
	return reminder, nil
}

func (s *service) MarkSent(ctx context.Context, input MarkSentInput) error {
	if err := validation.Struct(input); err != nil {
		return err
	}
	if err := s.repo.MarkSent(ctx, input.ReminderID, input.Via, s.now().UTC()); err != nil {
		if isNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reminder not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reminder sent")
	}
	return nil
}

func (s *service) List(ctx context.Context, invoiceID uuid.UUID) ([]models.Reminder, error) {
	reminders, err := s.repo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reminders")
	}
	return reminders, nil
}

// ListOverdue returns sent invoices due before asOf's calendar day together
// with their latest reminder.
func (s *service) ListOverdue(ctx context.Context, asOf time.Time) ([]Overdue, error) {
	day := numbering.Day(asOf, s.loc)
	invoices, err := s.repo.OverdueInvoices(ctx, day, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue invoices")
	}
	ids := make([]uuid.UUID, 0, len(invoices))
	for _, invoice := range invoices {
		ids = append(ids, invoice.ID)
	}
	reminders, err := s.repo.ListForInvoices(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reminders")
	}
	latest := make(map[uuid.UUID]models.Reminder, len(reminders))
	for _, reminder := range reminders {
		if current, ok := latest[reminder.InvoiceID]; !ok || reminder.ReminderLevel > current.ReminderLevel {
			latest[reminder.InvoiceID] = reminder
		}
	}

	overdue := make([]Overdue, 0, len(invoices))
	for _, invoice := range invoices {
		entry := Overdue{Invoice: invoice}
		if reminder, ok := latest[invoice.ID]; ok {
			date := reminder.ReminderDate
			entry.LastLevel = reminder.ReminderLevel
			entry.LastReminder = &date
		}
		overdue = append(overdue, entry)
	}
	return overdue, nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
