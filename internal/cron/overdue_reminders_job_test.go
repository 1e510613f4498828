package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/internal/invoices/invoicestest"
	"github.com/angelmondragon/gobd-ledger/internal/reminders"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
)

var runDay = time.Date(2026, 2, 20, 6, 0, 0, 0, time.UTC)

type fakeIssuer struct {
	overdue  []reminders.Overdue
	listErr  error
	failures map[uuid.UUID]error
	created  []reminders.CreateInput
}

func (f *fakeIssuer) ListOverdue(context.Context, time.Time) ([]reminders.Overdue, error) {
	return f.overdue, f.listErr
}

func (f *fakeIssuer) Create(_ context.Context, input reminders.CreateInput) (*models.Reminder, error) {
	if err := f.failures[input.InvoiceID]; err != nil {
		return nil, err
	}
	f.created = append(f.created, input)
	return &models.Reminder{ID: uuid.New(), InvoiceID: input.InvoiceID, ReminderLevel: 1}, nil
}

func overdueEntry(number string, last *time.Time) reminders.Overdue {
	return reminders.Overdue{
		Invoice:      models.Invoice{ID: uuid.New(), InvoiceNumber: number, Status: enums.InvoiceStatusSent},
		LastReminder: last,
	}
}

func newOverdueJob(t *testing.T, issuer *fakeIssuer) *overdueRemindersJob {
	t.Helper()
	job, err := NewOverdueRemindersJob(OverdueRemindersJobParams{Logger: logger.Nop(), Reminders: issuer, IntervalDays: 14})
	require.NoError(t, err)
	typed := job.(*overdueRemindersJob)
	typed.now = func() time.Time { return runDay }
	return typed
}

func TestNewOverdueRemindersJobValidates(t *testing.T) {
	_, err := NewOverdueRemindersJob(OverdueRemindersJobParams{Reminders: &fakeIssuer{}, IntervalDays: 14})
	assert.Error(t, err)
	_, err = NewOverdueRemindersJob(OverdueRemindersJobParams{Logger: logger.Nop(), IntervalDays: 14})
	assert.Error(t, err)
	_, err = NewOverdueRemindersJob(OverdueRemindersJobParams{Logger: logger.Nop(), Reminders: &fakeIssuer{}})
	assert.Error(t, err)
}

func TestOverdueRemindersJobHonoursInterval(t *testing.T) {
	recent := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	old := time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)
	never := overdueEntry("RE-20260105-0001", nil)
	waiting := overdueEntry("RE-20260105-0002", &recent)
	due := overdueEntry("RE-20260105-0003", &old)
	issuer := &fakeIssuer{overdue: []reminders.Overdue{never, waiting, due}}

	issued, err := newOverdueJob(t, issuer).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, issued)
	require.Len(t, issuer.created, 2)
	assert.Equal(t, never.Invoice.ID, issuer.created[0].InvoiceID)
	assert.Equal(t, due.Invoice.ID, issuer.created[1].InvoiceID)
	assert.Equal(t, ReminderActorName, issuer.created[0].Actor.Label())
	assert.Equal(t, enums.ActorRoleSystem, issuer.created[0].Actor.Role)
}

func TestOverdueRemindersJobSkipsConflictsAndCollectsFailures(t *testing.T) {
	paid := overdueEntry("RE-20260105-0001", nil)
	broken := overdueEntry("RE-20260105-0002", nil)
	fine := overdueEntry("RE-20260105-0003", nil)
	issuer := &fakeIssuer{
		overdue: []reminders.Overdue{paid, broken, fine},
		failures: map[uuid.UUID]error{
			paid.Invoice.ID:   pkgerrors.New(pkgerrors.CodeStateConflict, "reminders are only issued for sent, unpaid invoices"),
			broken.Invoice.ID: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db gone"), "persist reminder"),
		},
	}

	issued, err := newOverdueJob(t, issuer).Run(context.Background())
	assert.Equal(t, 1, issued)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RE-20260105-0002")
	assert.NotContains(t, err.Error(), "RE-20260105-0001")
}

func TestOverdueRemindersJobListError(t *testing.T) {
	_, err := newOverdueJob(t, &fakeIssuer{listErr: errors.New("timeout")}).Run(context.Background())
	assert.Error(t, err)
}

func TestOverdueRemindersJobAgainstLedger(t *testing.T) {
	stack := invoicestest.New(t)
	svc, err := reminders.NewService(reminders.NewRepository(stack.Client.DB()), stack.Client, stack.Invoices, stack.Numbers, stack.Outbox, stack.Config, nil)
	require.NoError(t, err)
	invoice := invoicestest.IssueSent(t, stack, invoices.ItemInput{
		Description: "Honig 250g",
		Quantity:    decimal.NewFromInt(2),
		UnitPrice:   decimal.RequireFromString("6.50"),
	})

	job, err := NewOverdueRemindersJob(OverdueRemindersJobParams{Logger: logger.Nop(), Reminders: svc, IntervalDays: stack.Config.ReminderIntervalDay})
	require.NoError(t, err)
	job.(*overdueRemindersJob).now = func() time.Time { return runDay }

	issued, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, issued)

	issued, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, issued, "the interval has not elapsed since the first reminder")

	listed, err := svc.List(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 1, listed[0].ReminderLevel)
	assert.Equal(t, ReminderActorName, listed[0].CreatedBy)
}
