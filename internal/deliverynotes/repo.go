package deliverynotes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, note *models.DeliveryNote) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryNote, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.DeliveryNote, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a delivery note repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the note and its items.
func (r *repository) Create(ctx context.Context, note *models.DeliveryNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryNote, error) {
	var note models.DeliveryNote
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&note).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.DeliveryNote, error) {
	var notes []models.DeliveryNote
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("customer_id = ?", customerID).
		Order("delivery_date DESC").
		Order("delivery_note_number DESC").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
