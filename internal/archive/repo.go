package archive

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
)

// Repository stores archive entries. Entries are never updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.InvoicePdfArchive) error
	Find(ctx context.Context, invoiceID uuid.UUID, filename string) (*models.InvoicePdfArchive, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoicePdfArchive, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an archive repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.InvoicePdfArchive) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Find(ctx context.Context, invoiceID uuid.UUID, filename string) (*models.InvoicePdfArchive, error) {
	var entry models.InvoicePdfArchive
	err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND pdf_filename = ?", invoiceID, filename).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoicePdfArchive, error) {
	var entries []models.InvoicePdfArchive
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
