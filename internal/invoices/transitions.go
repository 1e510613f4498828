package invoices

import (
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

// allowedTransitions lists every legal status move. Drafts are deleted, not
// cancelled; cancelled is terminal.
var allowedTransitions = map[enums.InvoiceStatus][]enums.InvoiceStatus{
	enums.InvoiceStatusDraft: {enums.InvoiceStatusSent},
	enums.InvoiceStatusSent:  {enums.InvoiceStatusPaid, enums.InvoiceStatusCancelled},
	enums.InvoiceStatusPaid:  {enums.InvoiceStatusCancelled},
}

// CanTransition reports whether actor may move invoice to target.
func CanTransition(actor types.Actor, invoice models.Invoice, target enums.InvoiceStatus) bool {
	return CheckTransition(actor, invoice, target) == nil
}

// CheckTransition explains why a transition is refused, or returns nil.
func CheckTransition(actor types.Actor, invoice models.Invoice, target enums.InvoiceStatus) error {
	if !target.IsValid() {
		return pkgerrors.Validationf("invalid invoice status %q", target)
	}
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required for status changes")
	}
	if !isAllowed(invoice.Status, target) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice status transition not allowed").
			WithDetails(map[string]any{
				"invoice_number": invoice.InvoiceNumber,
				"from":           invoice.Status.String(),
				"to":             target.String(),
			})
	}
	if target == enums.InvoiceStatusCancelled && invoice.IsReversal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reversal documents cannot be cancelled").
			WithDetails(map[string]any{"invoice_number": invoice.InvoiceNumber})
	}
	if actor.Role == enums.ActorRoleReseller {
		return pkgerrors.New(pkgerrors.CodeForbidden, "resellers cannot change invoice status")
	}
	if target == enums.InvoiceStatusCancelled && !canCancel(actor) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cancellation requires an administrator")
	}
	return nil
}

func isAllowed(from, to enums.InvoiceStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func canCancel(actor types.Actor) bool {
	return actor.Role == enums.ActorRoleAdmin || actor.Role == enums.ActorRoleSystem
}
