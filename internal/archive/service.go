// Package archive keeps the SHA-256 of every rendered document that left the
// house, so a stored PDF can later be proven unchanged.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// InvoiceReader loads the invoice an archive entry belongs to.
type InvoiceReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
}

type Service interface {
	Record(ctx context.Context, input RecordInput) (*Result, error)
	Verify(ctx context.Context, invoiceID uuid.UUID, filename string, content []byte) (bool, error)
	List(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoicePdfArchive, error)
}

type RecordInput struct {
	InvoiceID  uuid.UUID   `json:"invoice_id" validate:"required"`
	Filename   string      `json:"filename" validate:"required"`
	Content    []byte      `json:"content" validate:"required,min=1"`
	ArchivedBy types.Actor `json:"-"`
}

// Result reports whether a new entry was written. Entry is nil when the
// invoice was not in a state that gets archived.
type Result struct {
	Entry   *models.InvoicePdfArchive
	Created bool
}

type service struct {
	repo     Repository
	tx       txRunner
	invoices InvoiceReader
	outbox   outboxPublisher
	logg     *logger.Logger
}

func NewService(repo Repository, tx txRunner, invoices InvoiceReader, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("archive repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if invoices == nil {
		return nil, fmt.Errorf("invoice reader required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, invoices: invoices, outbox: publisher, logg: logg}, nil
}

// Hash returns the lower-case hex SHA-256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Record archives the first rendering of a sent invoice under filename.
// Later calls for the same filename return the existing entry untouched.
func (s *service) Record(ctx context.Context, input RecordInput) (*Result, error) {
	input.Filename = path.Base(strings.TrimSpace(input.Filename))
	if input.Filename == "." || input.Filename == "/" {
		input.Filename = ""
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	invoice, err := s.invoices.Get(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithInvoiceNumber(ctx, invoice.InvoiceNumber)
	logCtx = s.logg.WithField(logCtx, "filename", input.Filename)
	if invoice.Status != enums.InvoiceStatusSent {
		return &Result{}, nil
	}

	result := &Result{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.Find(ctx, invoice.ID, input.Filename)
		switch {
		case err == nil:
			result.Entry = existing
			return nil
		case !isNotFound(err):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load archive entry")
		}

		entry := &models.InvoicePdfArchive{
			ID:          uuid.New(),
			InvoiceID:   invoice.ID,
			PdfFilename: input.Filename,
			PdfHash:     Hash(input.Content),
			FileSize:    int64(len(input.Content)),
			ArchivedBy:  input.ArchivedBy.Label(),
		}
		if entry.ArchivedBy == "" {
			entry.ArchivedBy = types.SystemActorName
		}
		if err := repo.Create(ctx, entry); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "document archived concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist archive entry")
		}
		result.Entry = entry
		result.Created = true

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceArchived,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         outbox.ActorFrom(input.ArchivedBy),
			Data: payloads.InvoiceArchivedEvent{
				InvoiceID: invoice.ID,
				Filename:  entry.PdfFilename,
				PdfHash:   entry.PdfHash,
				FileSize:  entry.FileSize,
			},
		})
	})
	if err != nil {
		s.logg.Error(logCtx, "invoice.archive_failed", err)
		return nil, err
	}
	if result.Created {
		s.logg.Info(s.logg.WithField(logCtx, "pdf_hash", result.Entry.PdfHash), "invoice.archived")
	}
	return result, nil
}

// Verify reports whether content hashes to the archived value.
func (s *service) Verify(ctx context.Context, invoiceID uuid.UUID, filename string, content []byte) (bool, error) {
	entry, err := s.repo.Find(ctx, invoiceID, path.Base(strings.TrimSpace(filename)))
	if err != nil {
		if isNotFound(err) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "archive entry not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load archive entry")
	}
	return entry.PdfHash == Hash(content) && entry.FileSize == int64(len(content)), nil
}

func (s *service) List(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoicePdfArchive, error) {
	entries, err := s.repo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list archive entries")
	}
	return entries, nil
}
