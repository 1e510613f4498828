package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
)

// Repository persists the two stock pools and the adjustment journal.
// Every mutating statement is conditional, so a counter can never be driven
// below zero even if a caller skipped the row lock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	LockProductByLot(ctx context.Context, lotNumber string) (*models.Product, error)
	DecrementProduct(ctx context.Context, id uuid.UUID, qty int, at time.Time) (bool, error)
	IncrementProduct(ctx context.Context, id uuid.UUID, qty int, at time.Time) (bool, error)
	LockConsignment(ctx context.Context, customerID, productID uuid.UUID) (*models.ConsignmentStock, error)
	SellConsignment(ctx context.Context, id uuid.UUID, qty int, at time.Time) (bool, error)
	ReturnConsignment(ctx context.Context, customerID, productID uuid.UUID, qty int, at time.Time) (bool, error)
	UpsertConsignment(ctx context.Context, row *models.ConsignmentStock) error
	SetConsignmentQuantity(ctx context.Context, id uuid.UUID, qty int, at time.Time) error
	InsertAdjustment(ctx context.Context, adjustment *models.StockAdjustment) error
	ListAdjustments(ctx context.Context, productID uuid.UUID) ([]models.StockAdjustment, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	ListConsignment(ctx context.Context, customerID uuid.UUID) ([]models.ConsignmentStock, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) LockProductByLot(ctx context.Context, lotNumber string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("lot_number = ?", lotNumber).
		Order("created_at ASC").
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) DecrementProduct(ctx context.Context, id uuid.UUID, qty int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_qty = stock_qty - ?,
			updated_at = ?
		WHERE id = ? AND stock_qty >= ?
	`, qty, at, id, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) IncrementProduct(ctx context.Context, id uuid.UUID, qty int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_qty = stock_qty + ?,
			updated_at = ?
		WHERE id = ?
	`, qty, at, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) LockConsignment(ctx context.Context, customerID, productID uuid.UUID) (*models.ConsignmentStock, error) {
	var row models.ConsignmentStock
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) SellConsignment(ctx context.Context, id uuid.UUID, qty int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE consignment_stock
		SET quantity = quantity - ?,
			quantity_sold = quantity_sold + ?,
			updated_at = ?
		WHERE id = ? AND quantity >= ?
	`, qty, qty, at, id, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ReturnConsignment(ctx context.Context, customerID, productID uuid.UUID, qty int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE consignment_stock
		SET quantity = quantity + ?,
			quantity_sold = CASE WHEN quantity_sold >= ? THEN quantity_sold - ? ELSE 0 END,
			updated_at = ?
		WHERE customer_id = ? AND product_id = ?
	`, qty, qty, qty, at, customerID, productID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertConsignment adds row.Quantity to the (customer, product) pair,
// creating the row on first delivery. Unit price and delivery note follow the
// latest delivery.
func (r *repository) UpsertConsignment(ctx context.Context, row *models.ConsignmentStock) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO consignment_stock (id, customer_id, product_id, quantity, quantity_sold, unit_price, last_delivery_note_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT (customer_id, product_id) DO UPDATE SET
			quantity = consignment_stock.quantity + excluded.quantity,
			unit_price = excluded.unit_price,
			last_delivery_note_id = excluded.last_delivery_note_id,
			updated_at = excluded.updated_at
	`, row.ID, row.CustomerID, row.ProductID, row.Quantity, row.UnitPrice, row.LastDeliveryNoteID, row.CreatedAt, row.UpdatedAt).Error
}

func (r *repository) SetConsignmentQuantity(ctx context.Context, id uuid.UUID, qty int, at time.Time) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE consignment_stock
		SET quantity = ?,
			updated_at = ?
		WHERE id = ?
	`, qty, at, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) InsertAdjustment(ctx context.Context, adjustment *models.StockAdjustment) error {
	return r.db.WithContext(ctx).Create(adjustment).Error
}

func (r *repository) ListAdjustments(ctx context.Context, productID uuid.UUID) ([]models.StockAdjustment, error) {
	var rows []models.StockAdjustment
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("adjusted_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) ListConsignment(ctx context.Context, customerID uuid.UUID) ([]models.ConsignmentStock, error) {
	var rows []models.ConsignmentStock
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
