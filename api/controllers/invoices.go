package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/gobd-ledger/api/responses"
	"github.com/angelmondragon/gobd-ledger/api/validators"
	"github.com/angelmondragon/gobd-ledger/internal/invoices"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
)

// InvoiceVerifier recomputes a stored invoice fingerprint.
type InvoiceVerifier interface {
	VerifyByNumber(ctx context.Context, number string) (*invoices.VerifyResult, error)
}

// InvoiceVerify recomputes the fingerprint of the invoice named in the path.
// A mismatch is a 200 with valid=false and both fingerprints in the body.
func InvoiceVerify(svc InvoiceVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		number := validators.DocumentNumber(chi.URLParam(r, "invoiceNumber"))
		if number == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice number is required"))
			return
		}

		result, err := svc.VerifyByNumber(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !result.Valid && logg != nil {
			ctx := logg.WithInvoiceNumber(r.Context(), result.InvoiceNumber)
			logg.Warn(ctx, "invoice.verify_failed")
		}
		responses.WriteSuccess(w, result)
	}
}
