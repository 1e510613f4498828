package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gobd-ledger/api/middleware"
	"github.com/angelmondragon/gobd-ledger/api/responses"
	"github.com/angelmondragon/gobd-ledger/api/validators"
	"github.com/angelmondragon/gobd-ledger/internal/reconciliation"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
)

// PaymentNotificationScope namespaces claimed bank references in Redis.
const PaymentNotificationScope = "payment-notification"

// NotificationGuard claims external payment references so a replayed bank
// notification is refused before it reaches the ledger.
type NotificationGuard interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	FirstSeen(ctx context.Context, scope, key string) (time.Time, error)
	Release(ctx context.Context, scope, key string) error
}

type PaymentCheckRequest struct {
	InvoiceNumber string          `json:"invoice_number" validate:"required,max=64"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference" validate:"max=128"`
}

type PaymentResolveRequest struct {
	Action enums.PaymentResolveAction `json:"action" validate:"required,oneof=mark_paid ignore"`
}

// PaymentCheck records one payment notification against an invoice. A
// notification carrying a reference already claimed is refused with
// IDEMPOTENCY_KEY_REUSED; the claim is dropped again when the check fails.
func PaymentCheck(svc reconciliation.Service, guard NotificationGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		var body PaymentCheckRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reference := validators.SanitizeString(body.Reference, 128)

		claimed := false
		if guard != nil && reference != "" {
			replay, err := guard.Claim(r.Context(), PaymentNotificationScope, reference)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payment reference"))
				return
			}
			if replay {
				details := map[string]any{"reference": reference}
				if seen, seenErr := guard.FirstSeen(r.Context(), PaymentNotificationScope, reference); seenErr == nil && !seen.IsZero() {
					details["first_seen_at"] = seen
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "payment notification already processed").
					WithDetails(details))
				return
			}
			claimed = true
		}

		check, err := svc.Check(r.Context(), reconciliation.CheckInput{
			InvoiceNumber: validators.DocumentNumber(body.InvoiceNumber),
			Amount:        body.Amount,
			Reference:     reference,
			Actor:         middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			if claimed {
				if releaseErr := guard.Release(r.Context(), PaymentNotificationScope, reference); releaseErr != nil && logg != nil {
					logg.Error(r.Context(), "payment.reference_release_failed", releaseErr)
				}
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, check)
	}
}

// PaymentResolve settles a check that needed manual review.
func PaymentResolve(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		checkID, err := validators.ParseUUIDParam(r, "checkId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body PaymentResolveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		check, err := svc.Resolve(r.Context(), reconciliation.ResolveInput{
			CheckID: checkID,
			Action:  body.Action,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, check)
	}
}

// PaymentPending lists unresolved checks awaiting review, newest first.
func PaymentPending(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		checks, err := svc.Pending(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"checks": checks, "count": len(checks)})
	}
}
