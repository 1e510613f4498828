package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reminder *models.Reminder) error
	Latest(ctx context.Context, invoiceID uuid.UUID) (*models.Reminder, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Reminder, error)
	ListForInvoices(ctx context.Context, invoiceIDs []uuid.UUID) ([]models.Reminder, error)
	OverdueInvoices(ctx context.Context, before time.Time, limit int) ([]models.Invoice, error)
	MarkSent(ctx context.Context, id uuid.UUID, via string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reminder repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reminder *models.Reminder) error {
	return r.db.WithContext(ctx).Create(reminder).Error
}

func (r *repository) Latest(ctx context.Context, invoiceID uuid.UUID) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("reminder_level DESC").
		First(&reminder).Error
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Reminder, error) {
	var reminders []models.Reminder
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("reminder_level ASC").
		Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *repository) ListForInvoices(ctx context.Context, invoiceIDs []uuid.UUID) ([]models.Reminder, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	var reminders []models.Reminder
	if err := r.db.WithContext(ctx).
		Where("invoice_id IN ?", invoiceIDs).
		Order("reminder_level ASC").
		Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}

// OverdueInvoices returns sent invoices whose due date lies before the given
// day, oldest due date first.
func (r *repository) OverdueInvoices(ctx context.Context, before time.Time, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 500
	}
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", enums.InvoiceStatusSent, before).
		Order("due_date ASC").
		Order("invoice_number ASC").
		Limit(limit).
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, via string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Where("id = ?", id).
		Updates(map[string]any{"sent_via": via, "sent_date": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
