package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service moves stock between the primary pool, reseller consignment and the
// outside world. Methods taking a tx join the caller's unit of work; Adjust,
// AdjustByLot and CorrectConsignment open their own.
type Service interface {
	DeductForSale(ctx context.Context, tx *gorm.DB, pool enums.StockPool, customerID, productID uuid.UUID, qty int) error
	ReinstateInvoice(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, items []models.LineItem) error
	TransferToConsignment(ctx context.Context, tx *gorm.DB, customerID, productID uuid.UUID, qty int, unitPrice decimal.Decimal, noteID uuid.UUID) error
	Adjust(ctx context.Context, input AdjustInput) (*models.StockAdjustment, error)
	AdjustByLot(ctx context.Context, input AdjustInput) (*models.StockAdjustment, error)
	CorrectConsignment(ctx context.Context, input CorrectConsignmentInput) (*models.ConsignmentStock, error)
	Adjustments(ctx context.Context, productID uuid.UUID) ([]models.StockAdjustment, error)
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	Consignment(ctx context.Context, customerID uuid.UUID) ([]models.ConsignmentStock, error)
}

// AdjustInput describes a manual primary stock change. Quantity is signed:
// positive adds stock, negative removes it. Adjust addresses the product by
// ProductID, AdjustByLot by LotNumber.
type AdjustInput struct {
	ProductID uuid.UUID
	LotNumber string
	Quantity  int
	Type      enums.StockAdjustmentType
	Reason    string
	Actor     types.Actor
}

// CorrectConsignmentInput overwrites the quantity a reseller holds.
type CorrectConsignmentInput struct {
	CustomerID uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	Reason     string
	Actor      types.Actor
}

type service struct {
	repo    Repository
	tx      txRunner
	numbers numbering.Allocator
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	loc     *time.Location
	now     func() time.Time
}

// NewService wires the inventory ledger. loc is the business timezone used to
// date receipt numbers; nil means UTC.
func NewService(
	repo Repository,
	tx txRunner,
	numbers numbering.Allocator,
	publisher outboxPublisher,
	logg *logger.Logger,
	ledgerMetrics *metrics.LedgerMetrics,
	loc *time.Location,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
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
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:    repo,
		tx:      tx,
		numbers: numbers,
		outbox:  publisher,
		logg:    logg,
		metrics: ledgerMetrics,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// WholeQuantity converts a line item quantity into a stock count. Stock is
// counted in whole units, so fractional quantities cannot touch a pool.
func WholeQuantity(qty decimal.Decimal) (int, error) {
	if !qty.Equal(qty.Truncate(0)) {
		return 0, pkgerrors.Validationf("quantity %s must be a whole number for stocked products", qty.String())
	}
	return int(qty.IntPart()), nil
}

func (s *service) DeductForSale(ctx context.Context, tx *gorm.DB, pool enums.StockPool, customerID, productID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock deductions require a transaction")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	switch pool {
	case enums.StockPoolPrimary:
		product, err := repo.LockProduct(ctx, productID)
		if err != nil {
			return lookupError(err, "product")
		}
		if product.StockQty < qty {
			return s.rejectStock(pool, productID, product.StockQty, qty)
		}
		ok, err := repo.DecrementProduct(ctx, productID, qty, now)
		if err != nil {
			return mutationError(err, "deduct primary stock")
		}
		if !ok {
			return s.lostRace(pool, productID)
		}
		return nil
	case enums.StockPoolConsignment:
		if customerID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required for consignment stock")
		}
		row, err := repo.LockConsignment(ctx, customerID, productID)
		if err != nil {
			if isNotFound(err) {
				return s.rejectStock(pool, productID, 0, qty)
			}
			return lookupError(err, "consignment stock")
		}
		if row.Quantity < qty {
			return s.rejectStock(pool, productID, row.Quantity, qty)
		}
		ok, err := repo.SellConsignment(ctx, row.ID, qty, now)
		if err != nil {
			return mutationError(err, "deduct consignment stock")
		}
		if !ok {
			return s.lostRace(pool, productID)
		}
		return nil
	default:
		return pkgerrors.Validationf("stock pool %q cannot be deducted", pool)
	}
}

// ReinstateInvoice puts back everything the invoice took out of stock. Items
// without a product or with pool none are skipped.
func (s *service) ReinstateInvoice(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, items []models.LineItem) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock reinstatement requires a transaction")
	}
	if invoice == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice is required")
	}
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	for _, item := range items {
		if item.ProductID == nil || !item.StockPool.Tracked() {
			continue
		}
		qty, err := WholeQuantity(item.Quantity)
		if err != nil {
			return err
		}
		if qty <= 0 {
			continue
		}

		switch item.StockPool {
		case enums.StockPoolPrimary:
			ok, err := repo.IncrementProduct(ctx, *item.ProductID, qty, now)
			if err != nil {
				return mutationError(err, "reinstate primary stock")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
		case enums.StockPoolConsignment:
			ok, err := repo.ReturnConsignment(ctx, invoice.CustomerID, *item.ProductID, qty, now)
			if err != nil {
				return mutationError(err, "reinstate consignment stock")
			}
			if ok {
				continue
			}
			// The reseller row was removed after the sale; recreate it.
			if err := repo.UpsertConsignment(ctx, &models.ConsignmentStock{
				ID:         uuid.New(),
				CustomerID: invoice.CustomerID,
				ProductID:  *item.ProductID,
				Quantity:   qty,
				UnitPrice:  item.UnitPrice,
				CreatedAt:  now,
				UpdatedAt:  now,
			}); err != nil {
				return mutationError(err, "reinstate consignment stock")
			}
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
	})
	s.logg.Info(logCtx, "stock.reinstated")
	return nil
}

func (s *service) TransferToConsignment(ctx context.Context, tx *gorm.DB, customerID, productID uuid.UUID, qty int, unitPrice decimal.Decimal, noteID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock transfers require a transaction")
	}
	if customerID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id and product id are required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if unitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}
	if err := s.DeductForSale(ctx, tx, enums.StockPoolPrimary, uuid.Nil, productID, qty); err != nil {
		return err
	}

	now := s.now().UTC()
	row := &models.ConsignmentStock{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   qty,
		UnitPrice:  unitPrice.Round(2),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if noteID != uuid.Nil {
		row.LastDeliveryNoteID = &noteID
	}
	if err := s.repo.WithTx(tx).UpsertConsignment(ctx, row); err != nil {
		return mutationError(err, "credit consignment stock")
	}
	return nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.StockAdjustment, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.adjust(ctx, input, func(repo Repository) (*models.Product, error) {
		return repo.LockProduct(ctx, input.ProductID)
	})
}

func (s *service) AdjustByLot(ctx context.Context, input AdjustInput) (*models.StockAdjustment, error) {
	lot := strings.TrimSpace(input.LotNumber)
	if lot == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot number is required")
	}
	return s.adjust(ctx, input, func(repo Repository) (*models.Product, error) {
		return repo.LockProductByLot(ctx, lot)
	})
}

func (s *service) adjust(ctx context.Context, input AdjustInput, lock func(Repository) (*models.Product, error)) (*models.StockAdjustment, error) {
	if err := validateAdjustment(input); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)

	var adjustment *models.StockAdjustment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := lock(repo)
		if err != nil {
			return lookupError(err, "product")
		}

		newStock := product.StockQty + input.Quantity
		if newStock < 0 {
			return s.rejectStock(enums.StockPoolPrimary, product.ID, product.StockQty, -input.Quantity)
		}

		now := s.now().UTC()
		if input.Quantity < 0 {
			ok, err := repo.DecrementProduct(ctx, product.ID, -input.Quantity, now)
			if err != nil {
				return mutationError(err, "adjust stock")
			}
			if !ok {
				return s.lostRace(enums.StockPoolPrimary, product.ID)
			}
		} else {
			if _, err := repo.IncrementProduct(ctx, product.ID, input.Quantity, now); err != nil {
				return mutationError(err, "adjust stock")
			}
		}

		adjustment = &models.StockAdjustment{
			ID:             uuid.New(),
			ProductID:      product.ID,
			Quantity:       input.Quantity,
			OldStock:       product.StockQty,
			NewStock:       newStock,
			AdjustmentType: input.Type,
			Reason:         reason,
			AdjustedBy:     input.Actor.Label(),
			AdjustedAt:     now,
		}
		if input.Type.RequiresDocument() {
			number, err := s.numbers.Next(ctx, tx, enums.PrefixOwnReceipt, numbering.Day(now, s.loc))
			if err != nil {
				return err
			}
			adjustment.DocumentNumber = &number
		}
		if err := repo.InsertAdjustment(ctx, adjustment); err != nil {
			return mutationError(err, "record stock adjustment")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateStockAdjustment,
			AggregateID:   adjustment.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data: payloads.StockAdjustedEvent{
				AdjustmentID:   adjustment.ID,
				ProductID:      adjustment.ProductID,
				AdjustmentType: adjustment.AdjustmentType,
				Quantity:       adjustment.Quantity,
				OldStock:       adjustment.OldStock,
				NewStock:       adjustment.NewStock,
				DocumentNumber: adjustment.DocumentNumber,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithActor(ctx, adjustment.AdjustedBy)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"product_id":      adjustment.ProductID.String(),
		"adjustment_type": adjustment.AdjustmentType.String(),
		"quantity":        adjustment.Quantity,
		"old_stock":       adjustment.OldStock,
		"new_stock":       adjustment.NewStock,
	})
	s.logg.Info(logCtx, "stock.adjusted")
	return adjustment, nil
}

func validateAdjustment(input AdjustInput) error {
	if !input.Type.IsValid() {
		return pkgerrors.Validationf("invalid adjustment type %q", input.Type)
	}
	if input.Quantity == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "adjustment quantity must not be zero")
	}
	if input.Type.Reduces() && input.Quantity > 0 {
		return pkgerrors.Validationf("adjustment type %s can only reduce stock", input.Type)
	}
	if input.Type.Adds() && input.Quantity < 0 {
		return pkgerrors.Validationf("adjustment type %s can only add stock", input.Type)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "adjustment reason is required")
	}
	if input.Actor.Label() == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	return nil
}

func (s *service) CorrectConsignment(ctx context.Context, input CorrectConsignmentInput) (*models.ConsignmentStock, error) {
	if input.CustomerID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id and product id are required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "consignment quantity must not be negative")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correction reason is required")
	}
	if input.Actor.Label() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}

	var (
		row *models.ConsignmentStock
		old int
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockConsignment(ctx, input.CustomerID, input.ProductID)
		if err != nil {
			return lookupError(err, "consignment stock")
		}
		now := s.now().UTC()
		if err := repo.SetConsignmentQuantity(ctx, locked.ID, input.Quantity, now); err != nil {
			return mutationError(err, "correct consignment stock")
		}
		old = locked.Quantity
		locked.Quantity = input.Quantity
		locked.UpdatedAt = now
		row = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithActor(ctx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"customer_id":  input.CustomerID.String(),
		"product_id":   input.ProductID.String(),
		"old_quantity": old,
		"new_quantity": input.Quantity,
		"reason":       strings.TrimSpace(input.Reason),
	})
	s.logg.Info(logCtx, "consignment.corrected")
	return row, nil
}

func (s *service) Adjustments(ctx context.Context, productID uuid.UUID) ([]models.StockAdjustment, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	rows, err := s.repo.ListAdjustments(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock adjustments")
	}
	return rows, nil
}

// Products loads the catalog rows for ids. Any unknown id fails the call.
func (s *service) Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	rows, err := s.repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	products := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		products[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id.String()})
		}
	}
	return products, nil
}

// Consignment lists what a reseller currently holds and has sold.
func (s *service) Consignment(ctx context.Context, customerID uuid.UUID) ([]models.ConsignmentStock, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	rows, err := s.repo.ListConsignment(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list consignment stock")
	}
	return rows, nil
}

func (s *service) rejectStock(pool enums.StockPool, productID uuid.UUID, available, requested int) error {
	s.metrics.IncStockRejection(pool.String())
	return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
		WithDetails(map[string]any{
			"pool":       pool.String(),
			"product_id": productID.String(),
			"available":  available,
			"requested":  requested,
		})
}

func (s *service) lostRace(pool enums.StockPool, productID uuid.UUID) error {
	s.metrics.IncStockRejection(pool.String())
	return pkgerrors.New(pkgerrors.CodeConflict, "stock changed concurrently").
		WithDetails(map[string]any{"pool": pool.String(), "product_id": productID.String()})
}

func lookupError(err error, what string) error {
	if isNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}

func mutationError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsCheckViolation(err) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "insufficient stock")
	}
	if db.IsSerializationFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
