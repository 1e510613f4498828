// Package consignment settles what resellers sold out of their consignment
// stock as KOM invoices.
package consignment

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

// Holdings is the part of the inventory service settlements read.
type Holdings interface {
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	Consignment(ctx context.Context, customerID uuid.UUID) ([]models.ConsignmentStock, error)
}

// Issuer is the slice of the invoice service a settlement needs.
type Issuer interface {
	Create(ctx context.Context, input invoices.CreateInput) (*models.Invoice, error)
}

type Service interface {
	Settle(ctx context.Context, input SettleInput) (*models.Invoice, error)
	Statement(ctx context.Context, customerID uuid.UUID) ([]Position, error)
}

type SettleInput struct {
	CustomerID  uuid.UUID           `json:"customer_id" validate:"required"`
	InvoiceDate time.Time           `json:"invoice_date"`
	ShowTax     bool                `json:"show_tax"`
	Notes       string              `json:"notes"`
	Items       []SoldItem          `json:"items" validate:"required,min=1,dive"`
	Status      enums.InvoiceStatus `json:"status" validate:"omitempty,oneof=draft sent"`
	Actor       types.Actor         `json:"-"`
}

// SoldItem is a quantity the reseller reports as sold.
type SoldItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

// Position is one product a reseller holds on consignment.
type Position struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Description  string          `json:"description"`
	Quantity     int             `json:"quantity"`
	QuantitySold int             `json:"quantity_sold"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Value        decimal.Decimal `json:"value"`
}

type service struct {
	holdings Holdings
	invoices Issuer
	cfg      config.LedgerConfig
	loc      *time.Location
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(holdings Holdings, issuer Issuer, cfg config.LedgerConfig, logg *logger.Logger) (Service, error) {
	if holdings == nil {
		return nil, fmt.Errorf("consignment holdings required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("invoice issuer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		holdings: holdings,
		invoices: issuer,
		cfg:      cfg,
		loc:      cfg.Location(),
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Settle issues a KOM invoice for the sold quantities at the consignment unit
// price. The invoice draws from the reseller's consignment pool, so a
// quantity above what the reseller holds fails the whole settlement.
func (s *service) Settle(ctx context.Context, input SettleInput) (*models.Invoice, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.Actor.Role == enums.ActorRoleReseller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "resellers cannot settle their own consignment")
	}

	rows, err := s.holdings.Consignment(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	held := make(map[uuid.UUID]models.ConsignmentStock, len(rows))
	for _, row := range rows {
		held[row.ProductID] = row
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if _, ok := held[item.ProductID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not on consignment with this customer").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		ids = append(ids, item.ProductID)
	}
	products, err := s.holdings.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]invoices.ItemInput, 0, len(input.Items))
	for _, sold := range input.Items {
		id := sold.ProductID
		items = append(items, invoices.ItemInput{
			ProductID:   &id,
			Description: products[id].Name,
			Quantity:    decimal.NewFromInt(int64(sold.Quantity)),
			UnitPrice:   held[id].UnitPrice,
			StockPool:   enums.StockPoolConsignment,
		})
	}

	model, rate := enums.TaxModelSmallBusiness, decimal.Zero
	if input.ShowTax {
		model, rate = enums.TaxModelAgricultural, s.cfg.AgriculturalTax()
	}
	status := input.Status
	if status == "" {
		status = enums.InvoiceStatusSent
	}
	date := input.InvoiceDate
	if date.IsZero() {
		date = numbering.Day(s.now(), s.loc)
	}

	invoice, err := s.invoices.Create(ctx, invoices.CreateInput{
		Prefix:       enums.PrefixSettlement,
		CustomerID:   input.CustomerID,
		CustomerType: enums.CustomerTypeReseller,
		TaxModel:     model,
		TaxRate:      decimal.NewNullDecimal(rate),
		InvoiceDate:  date,
		Status:       status,
		Notes:        input.Notes,
		Items:        items,
		Actor:        input.Actor,
		Reason:       "Kommissionsabrechnung",
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"customer_id": input.CustomerID.String(),
		"tax_model":   model.String(),
		"total":       invoice.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "consignment.settled")
	return invoice, nil
}

// Statement lists the reseller's consignment positions valued at unit price.
func (s *service) Statement(ctx context.Context, customerID uuid.UUID) ([]Position, error) {
	rows, err := s.holdings.Consignment(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Position{}, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	products, err := s.holdings.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, Position{
			ProductID:    row.ProductID,
			Description:  products[row.ProductID].Name,
			Quantity:     row.Quantity,
			QuantitySold: row.QuantitySold,
			UnitPrice:    row.UnitPrice,
			Value:        row.UnitPrice.Mul(decimal.NewFromInt(int64(row.Quantity))).Round(2),
		})
	}
	return positions, nil
}
