package invoices

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
)

// immutableColumns are sealed by the fingerprint or identify the document.
// The database trigger enforces the same rule; this guard fails earlier and
// with a typed error.
var immutableColumns = map[string]struct{}{
	"id":             {},
	"invoice_number": {},
	"customer_id":    {},
	"invoice_date":   {},
	"subtotal":       {},
	"tax_rate":       {},
	"tax_amount":     {},
	"total":          {},
	"tax_model":      {},
	"customer_type":  {},
	"fingerprint":    {},
	"reversal_of_id": {},
}

// Repository persists invoices and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice, items []models.LineItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByNumber(ctx context.Context, number string) (*models.Invoice, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	LockByNumber(ctx context.Context, number string) (*models.Invoice, error)
	ListItems(ctx context.Context, invoiceID uuid.UUID) ([]models.LineItem, error)
	UpdateInvoice(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an invoice repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the invoice row, then its items in position order.
func (r *repository) Create(ctx context.Context, invoice *models.Invoice, items []models.LineItem) error {
	if err := r.db.WithContext(ctx).Omit("LineItems").Create(invoice).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].InvoiceID = invoice.ID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("invoice_number = ?", number))
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *repository) LockByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("invoice_number = ?", number))
}

// find loads the invoice matched by query and then its items, so that a
// locking clause only ever applies to the invoice row.
func (r *repository) find(ctx context.Context, query *gorm.DB) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := query.First(&invoice).Error; err != nil {
		return nil, err
	}
	items, err := r.ListItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items
	return &invoice, nil
}

func (r *repository) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]models.LineItem, error) {
	var items []models.LineItem
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("position ASC").
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateInvoice writes the mutable columns. Updates touching a sealed column
// are refused before any SQL runs.
func (r *repository) UpdateInvoice(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	for column := range updates {
		if _, sealed := immutableColumns[column]; sealed {
			return pkgerrors.New(pkgerrors.CodeForbidden, "invoice column is immutable once issued").
				WithDetails(map[string]any{"column": column})
		}
	}
	res := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a draft with its items. Status log rows follow through the
// foreign key cascade.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("invoice_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Invoice{})
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
