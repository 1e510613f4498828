// Package reversal cancels issued invoices the GoBD way: the original stays
// untouched and a negated STORNO document is issued against it.
package reversal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/internal/numbering"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

const descriptionPrefix = "STORNO: "

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger is the slice of the invoice service a reversal composes.
type Ledger interface {
	LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Invoice, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input invoices.CreateInput) (*models.Invoice, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, input invoices.TransitionInput) (*models.Invoice, error)
	AppendNoteTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, note string) error
}

type Service interface {
	Reverse(ctx context.Context, input ReverseInput) (*Result, error)
}

type ReverseInput struct {
	InvoiceID uuid.UUID
	Actor     types.Actor
	Reason    string
}

// Result carries both documents as they stand after commit.
type Result struct {
	Original *models.Invoice
	Reversal *models.Invoice
}

type service struct {
	tx      txRunner
	ledger  Ledger
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	loc     *time.Location
	now     func() time.Time
}

func NewService(tx txRunner, ledger Ledger, publisher outboxPublisher, logg *logger.Logger, ledgerMetrics *metrics.LedgerMetrics, loc *time.Location) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("invoice ledger required")
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
		tx:      tx,
		ledger:  ledger,
		outbox:  publisher,
		logg:    logg,
		metrics: ledgerMetrics,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// Reverse issues the STORNO document and cancels the original in one
// transaction. Stock comes back through the cancel transition only.
func (s *service) Reverse(ctx context.Context, input ReverseInput) (*Result, error) {
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a reversal needs a reason")
	}

	result := &Result{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		original, err := s.ledger.LockTx(ctx, tx, input.InvoiceID)
		if err != nil {
			return err
		}
		if original.IsReversal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reversal documents cannot be reversed").
				WithDetails(map[string]any{"invoice_number": original.InvoiceNumber})
		}
		if err := invoices.CheckTransition(input.Actor, *original, enums.InvoiceStatusCancelled); err != nil {
			return err
		}

		storno, err := s.ledger.CreateTx(ctx, tx, s.mirror(original, input.Actor, reason))
		if err != nil {
			return err
		}

		if _, err := s.ledger.TransitionTx(ctx, tx, invoices.TransitionInput{
			InvoiceID: original.ID,
			Target:    enums.InvoiceStatusCancelled,
			Actor:     input.Actor,
			Reason:    fmt.Sprintf("reversed by %s: %s", storno.InvoiceNumber, reason),
		}); err != nil {
			return err
		}
		if err := s.ledger.AppendNoteTx(ctx, tx, original.ID, "Storniert durch "+storno.InvoiceNumber); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceReversed,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   original.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data: payloads.InvoiceReversedEvent{
				OriginalID:     original.ID,
				OriginalNumber: original.InvoiceNumber,
				ReversalID:     storno.ID,
				ReversalNumber: storno.InvoiceNumber,
				Total:          storno.Total,
				Reason:         reason,
			},
		}); err != nil {
			return err
		}

		current, err := s.ledger.LockTx(ctx, tx, original.ID)
		if err != nil {
			return err
		}
		result.Original = current
		result.Reversal = storno
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncReversal()
	logCtx := s.logg.WithInvoiceNumber(ctx, result.Original.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"reversal_number": result.Reversal.InvoiceNumber,
		"total":           result.Reversal.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "invoice.reversed")
	return result, nil
}

// mirror builds the STORNO input: same parties and tax treatment, negated
// amounts, items that never touch stock.
func (s *service) mirror(original *models.Invoice, actor types.Actor, reason string) invoices.CreateInput {
	today := numbering.Day(s.now(), s.loc)
	due := today
	items := make([]invoices.ItemInput, 0, len(original.LineItems))
	for _, item := range original.LineItems {
		var productID *uuid.UUID
		if item.ProductID != nil {
			id := *item.ProductID
			productID = &id
		}
		items = append(items, invoices.ItemInput{
			ProductID:   productID,
			Description: descriptionPrefix + item.Description,
			Quantity:    item.Quantity.Neg(),
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			StockPool:   enums.StockPoolNone,
		})
	}
	totals := invoices.Totals{
		Subtotal:  original.Subtotal,
		TaxAmount: original.TaxAmount,
		Total:     original.Total,
	}.Negate()
	originalID := original.ID

	return invoices.CreateInput{
		Prefix:       enums.PrefixReversal,
		CustomerID:   original.CustomerID,
		CustomerType: original.CustomerType,
		TaxModel:     original.TaxModel,
		TaxRate:      decimal.NewNullDecimal(original.TaxRate),
		InvoiceDate:  today,
		DueDate:      &due,
		Status:       enums.InvoiceStatusSent,
		Notes:        fmt.Sprintf("Storno zu %s. Grund: %s", original.InvoiceNumber, reason),
		Items:        items,
		Actor:        actor,
		Reason:       "reversal of " + original.InvoiceNumber,
		ReversalOf:   &originalID,
		Totals:       &totals,
	}
}
