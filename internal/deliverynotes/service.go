// Package deliverynotes books LS delivery notes that move goods from primary
// stock into a reseller's consignment stock.
package deliverynotes

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
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
	"github.com/angelmondragon/gobd-ledger/pkg/validation"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Stock is the slice of the inventory service a delivery needs.
type Stock interface {
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	TransferToConsignment(ctx context.Context, tx *gorm.DB, customerID, productID uuid.UUID, qty int, unitPrice decimal.Decimal, noteID uuid.UUID) error
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.DeliveryNote, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DeliveryNote, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.DeliveryNote, error)
}

type CreateInput struct {
	CustomerID   uuid.UUID   `json:"customer_id" validate:"required"`
	DeliveryDate time.Time   `json:"delivery_date"`
	ShowTax      bool        `json:"show_tax"`
	Notes        string      `json:"notes"`
	Items        []ItemInput `json:"items" validate:"required,min=1,dive"`
	Actor        types.Actor `json:"-"`
}

type ItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

type service struct {
	repo    Repository
	tx      txRunner
	stock   Stock
	numbers numbering.Allocator
	outbox  outboxPublisher
	loc     *time.Location
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, tx txRunner, stock Stock, numbers numbering.Allocator, publisher outboxPublisher, logg *logger.Logger, loc *time.Location) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery note repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
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
		stock:   stock,
		numbers: numbers,
		outbox:  publisher,
		loc:     loc,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// ResellerPrice is the unit price goods are handed to resellers at.
func ResellerPrice(product models.Product) decimal.Decimal {
	if product.ResellerPrice.Valid {
		return product.ResellerPrice.Decimal
	}
	return product.Price
}

// Create numbers the note, writes it and transfers every item into the
// customer's consignment stock. Any shortfall rolls the whole note back.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.DeliveryNote, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if !input.Actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required to create delivery notes")
	}
	if input.Actor.Role == enums.ActorRoleReseller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "resellers cannot create delivery notes")
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.stock.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	day := numbering.Day(s.now(), s.loc)
	if !input.DeliveryDate.IsZero() {
		day = time.Date(input.DeliveryDate.Year(), input.DeliveryDate.Month(), input.DeliveryDate.Day(), 0, 0, 0, 0, time.UTC)
	}

	note := &models.DeliveryNote{
		ID:           uuid.New(),
		CustomerID:   input.CustomerID,
		DeliveryDate: day,
		Status:       enums.DeliveryNoteDelivered,
		ShowTax:      input.ShowTax,
		CreatedBy:    input.Actor.Label(),
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		note.Notes = &notes
	}
	for i, in := range input.Items {
		product := products[in.ProductID]
		if !product.Active {
			return nil, pkgerrors.Validationf("product %s is not deliverable", product.Name).
				WithDetails(map[string]any{"product_id": product.ID.String()})
		}
		price := ResellerPrice(product).Round(2)
		note.Items = append(note.Items, models.DeliveryNoteItem{
			ID:             uuid.New(),
			DeliveryNoteID: note.ID,
			ProductID:      product.ID,
			Description:    product.Name,
			Quantity:       in.Quantity,
			UnitPrice:      price,
			Total:          price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2),
			Position:       i + 1,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		number, err := s.numbers.Next(ctx, tx, enums.PrefixDeliveryNote, day)
		if err != nil {
			return err
		}
		note.DeliveryNoteNumber = number

		if err := s.repo.WithTx(tx).Create(ctx, note); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "delivery note number already issued")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist delivery note")
		}
		for _, item := range note.Items {
			if err := s.stock.TransferToConsignment(ctx, tx, note.CustomerID, item.ProductID, item.Quantity, item.UnitPrice, note.ID); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryNoteCreated,
			AggregateType: enums.AggregateDeliveryNote,
			AggregateID:   note.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data: payloads.DeliveryNoteCreatedEvent{
				DeliveryNoteID:     note.ID,
				DeliveryNoteNumber: note.DeliveryNoteNumber,
				CustomerID:         note.CustomerID,
				ItemCount:          len(note.Items),
				Total:              note.Total(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithActor(ctx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"delivery_note_number": note.DeliveryNoteNumber,
		"customer_id":          note.CustomerID.String(),
		"items":                len(note.Items),
		"total":                note.Total().StringFixed(2),
	})
	s.logg.Info(logCtx, "delivery_note.created")
	return note, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.DeliveryNote, error) {
	note, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery note not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery note")
	}
	return note, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.DeliveryNote, error) {
	notes, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivery notes")
	}
	return notes, nil
}
