package auditlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

// Service records invoice status changes.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.InvoiceStatusLog, error)
	History(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceStatusLog, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// RecordInput captures one status change. OldStatus is nil for the entry
// written when the invoice is created.
type RecordInput struct {
	InvoiceID uuid.UUID
	OldStatus *enums.InvoiceStatus
	NewStatus enums.InvoiceStatus
	Actor     types.Actor
	Reason    string
}

// NewService wires an audit log service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit log repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Record appends the entry on tx, so it commits or rolls back together with
// the status change it documents.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.InvoiceStatusLog, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit entries require a transaction")
	}
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	if !input.NewStatus.IsValid() {
		return nil, pkgerrors.Validationf("invalid invoice status %q", input.NewStatus)
	}
	if input.OldStatus != nil && !input.OldStatus.IsValid() {
		return nil, pkgerrors.Validationf("invalid invoice status %q", *input.OldStatus)
	}
	label := input.Actor.Label()
	if label == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}

	entry := &models.InvoiceStatusLog{
		ID:        uuid.New(),
		InvoiceID: input.InvoiceID,
		OldStatus: input.OldStatus,
		NewStatus: input.NewStatus,
		ChangedAt: s.now().UTC(),
		ChangedBy: label,
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		entry.Reason = &reason
	}

	if err := s.repo.WithTx(tx).Append(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status log")
	}
	return entry, nil
}

// History returns the entries of one invoice in the order they were written.
func (s *service) History(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceStatusLog, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	entries, err := s.repo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list status log")
	}
	return entries, nil
}
