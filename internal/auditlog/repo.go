package auditlog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
)

// Repository persists status log rows. It offers no update or delete: rows
// only disappear through the cascade of a deleted draft invoice.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.InvoiceStatusLog) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceStatusLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit log repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *models.InvoiceStatusLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceStatusLog, error) {
	var entries []models.InvoiceStatusLog
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("changed_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
