// Package dispatch sends rendered invoices to customers. Rendering and mail
// transport are collaborators; dispatch owns the ledger side effects.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gobd-ledger/internal/archive"
	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
	"github.com/angelmondragon/gobd-ledger/pkg/validation"
)

// Document is a rendered invoice.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Renderer interface {
	Render(ctx context.Context, invoice *models.Invoice) (Document, error)
}

type Message struct {
	To         string
	CC         []string
	Subject    string
	Body       string
	Attachment Document
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Ledger is the slice of the invoice service dispatch drives.
type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Transition(ctx context.Context, input invoices.TransitionInput) (*models.Invoice, error)
}

type Archiver interface {
	Record(ctx context.Context, input archive.RecordInput) (*archive.Result, error)
}

type Service interface {
	Send(ctx context.Context, input SendInput) (*SendResult, error)
}

type SendInput struct {
	InvoiceID uuid.UUID   `json:"invoice_id" validate:"required"`
	Recipient string      `json:"recipient" validate:"required,email"`
	CC        []string    `json:"cc" validate:"omitempty,dive,email"`
	Actor     types.Actor `json:"-"`
}

// SendResult describes what happened after the mail went out. ArchiveErr is
// informational; the send itself succeeded.
type SendResult struct {
	Invoice    *models.Invoice
	MarkedSent bool
	Archive    *archive.Result
	ArchiveErr error
}

type service struct {
	ledger   Ledger
	renderer Renderer
	mailer   Mailer
	archive  Archiver
	logg     *logger.Logger
}

func NewService(ledger Ledger, renderer Renderer, mailer Mailer, archiver Archiver, logg *logger.Logger) (Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("invoice ledger required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if archiver == nil {
		return nil, fmt.Errorf("archiver required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{ledger: ledger, renderer: renderer, mailer: mailer, archive: archiver, logg: logg}, nil
}

func (s *service) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	input.Recipient = strings.TrimSpace(input.Recipient)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if !input.Actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required to send invoices")
	}

	invoice, err := s.ledger.Get(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == enums.InvoiceStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled invoices are not sent").
			WithDetails(map[string]any{"invoice_number": invoice.InvoiceNumber})
	}
	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	logCtx = s.logg.WithActor(logCtx, input.Actor.Label())

	doc, err := s.renderer.Render(ctx, invoice)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render invoice")
	}
	if doc.Filename == "" {
		doc.Filename = "Rechnung_" + invoice.InvoiceNumber + ".pdf"
	}
	if doc.ContentType == "" {
		doc.ContentType = "application/pdf"
	}

	if err := s.mailer.Send(ctx, Message{
		To:         input.Recipient,
		CC:         input.CC,
		Subject:    "Rechnung " + invoice.InvoiceNumber,
		Body:       fmt.Sprintf("Anbei erhalten Sie die Rechnung %s über %s EUR.", invoice.InvoiceNumber, invoice.Total.StringFixed(2)),
		Attachment: doc,
	}); err != nil {
		s.logg.Error(logCtx, "invoice.dispatch_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send invoice mail")
	}

	result := &SendResult{Invoice: invoice}
	if invoice.Status == enums.InvoiceStatusDraft {
		updated, err := s.ledger.Transition(ctx, invoices.TransitionInput{
			InvoiceID: invoice.ID,
			Target:    enums.InvoiceStatusSent,
			Actor:     input.Actor,
			Reason:    "sent by mail to " + input.Recipient,
		})
		if err != nil {
			return nil, err
		}
		result.Invoice = updated
		result.MarkedSent = true
	}

	if result.Invoice.Status == enums.InvoiceStatusSent {
		entry, err := s.archive.Record(ctx, archive.RecordInput{
			InvoiceID:  invoice.ID,
			Filename:   doc.Filename,
			Content:    doc.Content,
			ArchivedBy: input.Actor,
		})
		if err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invoice.archive_skipped")
			result.ArchiveErr = err
		}
		result.Archive = entry
	}

	s.logg.Info(s.logg.WithField(logCtx, "recipient", input.Recipient), "invoice.dispatched")
	return result, nil
}
