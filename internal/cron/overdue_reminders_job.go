package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/gobd-ledger/internal/reminders"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

// ReminderActorName labels reminders the scheduler issues.
const ReminderActorName = "Mahnlauf"

type reminderIssuer interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]reminders.Overdue, error)
	Create(ctx context.Context, input reminders.CreateInput) (*models.Reminder, error)
}

type OverdueRemindersJobParams struct {
	Logger       *logger.Logger
	Reminders    reminderIssuer
	IntervalDays int
}

// NewOverdueRemindersJob issues the next reminder level for every overdue sent
// invoice whose last reminder is at least IntervalDays old.
func NewOverdueRemindersJob(params OverdueRemindersJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reminders == nil {
		return nil, fmt.Errorf("reminder service required")
	}
	if params.IntervalDays <= 0 {
		return nil, fmt.Errorf("reminder interval must be positive")
	}
	return &overdueRemindersJob{
		logg:     params.Logger,
		issuer:   params.Reminders,
		interval: params.IntervalDays,
		actor:    types.SystemActor(ReminderActorName),
		now:      time.Now,
	}, nil
}

type overdueRemindersJob struct {
	logg     *logger.Logger
	issuer   reminderIssuer
	interval int
	actor    types.Actor
	now      func() time.Time
}

func (j *overdueRemindersJob) Name() string { return "overdue-reminders" }

func (j *overdueRemindersJob) Run(ctx context.Context) (int, error) {
	asOf := j.now()
	overdue, err := j.issuer.ListOverdue(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list overdue invoices: %w", err)
	}

	var errs error
	issued, skipped := 0, 0
	for _, candidate := range overdue {
		if !candidate.ReminderDue(asOf, j.interval) {
			skipped++
			continue
		}
		reminder, err := j.issuer.Create(ctx, reminders.CreateInput{
			InvoiceID: candidate.Invoice.ID,
			Actor:     j.actor,
		})
		if err != nil {
			logCtx := j.logg.WithInvoiceNumber(ctx, candidate.Invoice.InvoiceNumber)
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				// Paid, cancelled or reminded by someone else since the listing.
				j.logg.Warn(logCtx, "reminder.skipped")
				skipped++
				continue
			}
			j.logg.Error(logCtx, "reminder.failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", candidate.Invoice.InvoiceNumber, err))
			continue
		}
		issued++
		logCtx := j.logg.WithInvoiceNumber(ctx, candidate.Invoice.InvoiceNumber)
		logCtx = j.logg.WithFields(logCtx, map[string]any{
			"reminder_number": reminder.ReminderNumber,
			"level":           reminder.ReminderLevel,
		})
		j.logg.Info(logCtx, "reminder.scheduled")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"overdue": len(overdue),
		"issued":  issued,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "overdue reminder run complete")
	return issued, errs
}
