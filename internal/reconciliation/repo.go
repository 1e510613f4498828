package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// Repository persists payment checks. Checks are written once; only the
// resolution columns change afterwards.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, check *models.PaymentCheck) error
	LockByID(ctx context.Context, id uuid.UUID) (*models.PaymentCheck, error)
	CountMatched(ctx context.Context, invoiceID uuid.UUID) (int64, error)
	MarkResolved(ctx context.Context, id uuid.UUID, notes string, by string, at time.Time) error
	ListPending(ctx context.Context, limit int) ([]models.PaymentCheck, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment check repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, check *models.PaymentCheck) error {
	return r.db.WithContext(ctx).Create(check).Error
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.PaymentCheck, error) {
	var check models.PaymentCheck
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&check).Error
	if err != nil {
		return nil, err
	}
	return &check, nil
}

func (r *repository) CountMatched(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentCheck{}).
		Where("invoice_id = ? AND status = ?", invoiceID, enums.PaymentCheckMatched).
		Count(&count).Error
	return count, err
}

// MarkResolved closes an open check. Zero affected rows means the check was
// already resolved or does not exist.
func (r *repository) MarkResolved(ctx context.Context, id uuid.UUID, notes string, by string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentCheck{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"resolved":    true,
			"resolved_at": at,
			"resolved_by": by,
			"notes":       notes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListPending returns unresolved checks that need a human, newest first.
func (r *repository) ListPending(ctx context.Context, limit int) ([]models.PaymentCheck, error) {
	if limit <= 0 {
		limit = 100
	}
	var checks []models.PaymentCheck
	err := r.db.WithContext(ctx).
		Where("resolved = ? AND status IN ?", false, []enums.PaymentCheckStatus{
			enums.PaymentCheckMismatch,
			enums.PaymentCheckNotFound,
			enums.PaymentCheckDuplicate,
		}).
		Order("check_date DESC").
		Limit(limit).
		Find(&checks).Error
	if err != nil {
		return nil, err
	}
	return checks, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
