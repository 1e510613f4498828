// Package pos books counter sales as paid BAR invoices.
package pos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
	"github.com/angelmondragon/gobd-ledger/pkg/validation"
)

const (
	// ActorName labels sales booked without a logged-in cashier.
	ActorName     = "POS-System"
	PaymentMethod = "bar"
	saleNotes     = "Barverkauf / Direktverkauf\nKasse: " + ActorName
	saleReason    = "Barverkauf - automatisch als bezahlt markiert"
)

// CashCustomerID is the anonymous walk-in customer every BAR invoice is
// booked against.
var CashCustomerID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("gobd-ledger/cash-customer"))

// Catalog resolves the products of a sale.
type Catalog interface {
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Issuer is the slice of the invoice service a sale needs.
type Issuer interface {
	Create(ctx context.Context, input invoices.CreateInput) (*models.Invoice, error)
}

type Service interface {
	CompleteSale(ctx context.Context, input SaleInput) (*models.Invoice, error)
}

type SaleInput struct {
	Items []SaleItem  `json:"items" validate:"required,min=1,dive"`
	Actor types.Actor `json:"-"`
}

type SaleItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

type service struct {
	catalog  Catalog
	invoices Issuer
	cfg      config.LedgerConfig
	loc      *time.Location
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(catalog Catalog, issuer Issuer, cfg config.LedgerConfig, logg *logger.Logger) (Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("invoice issuer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		catalog:  catalog,
		invoices: issuer,
		cfg:      cfg,
		loc:      cfg.Location(),
		logg:     logg,
		now:      time.Now,
	}, nil
}

// CompleteSale issues a paid BAR invoice for the basket and draws the goods
// from primary stock in the same transaction.
func (s *service) CompleteSale(ctx context.Context, input SaleInput) (*models.Invoice, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	actor := input.Actor
	if actor == (types.Actor{}) {
		actor = types.SystemActor(ActorName)
	}
	if actor.Role == enums.ActorRoleReseller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "resellers cannot book cash sales")
	}

	basket := merge(input.Items)
	ids := make([]uuid.UUID, 0, len(basket))
	for _, line := range basket {
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]invoices.ItemInput, 0, len(basket))
	for _, line := range basket {
		product := products[line.ProductID]
		if !product.Active {
			return nil, pkgerrors.Validationf("product %s is not for sale", product.Name).
				WithDetails(map[string]any{"product_id": product.ID.String()})
		}
		id := product.ID
		items = append(items, invoices.ItemInput{
			ProductID:   &id,
			Description: product.Name,
			Quantity:    decimal.NewFromInt(int64(line.Quantity)),
			UnitPrice:   product.Price,
			TaxRate:     decimal.NewNullDecimal(product.TaxRate),
			StockPool:   enums.StockPoolPrimary,
		})
	}

	today := numbering.Day(s.now(), s.loc)
	invoice, err := s.invoices.Create(ctx, invoices.CreateInput{
		Prefix:        enums.PrefixCashSale,
		CustomerID:    CashCustomerID,
		CustomerType:  enums.CustomerTypeEndCustomer,
		TaxModel:      enums.TaxModelAgricultural,
		TaxRate:       decimal.NewNullDecimal(s.cfg.AgriculturalTax()),
		InvoiceDate:   today,
		DueDate:       &today,
		Status:        enums.InvoiceStatusPaid,
		Notes:         saleNotes,
		PaymentMethod: PaymentMethod,
		Items:         items,
		Actor:         actor,
		Reason:        saleReason,
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"items": len(items),
		"total": invoice.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "sale.completed")
	return invoice, nil
}

// merge folds repeated products into one line, keeping first-seen order.
func merge(items []SaleItem) []SaleItem {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]SaleItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
