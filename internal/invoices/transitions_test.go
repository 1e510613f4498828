package invoices

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

var (
	adminActor    = types.Actor{Name: "anna", Role: enums.ActorRoleAdmin}
	cashierActor  = types.Actor{Name: "kasse-1", Role: enums.ActorRoleCashier}
	resellerActor = types.Actor{Name: "hofladen", Role: enums.ActorRoleReseller}
	systemActor   = types.SystemActor("")
)

func TestCheckTransitionMatrix(t *testing.T) {
	statuses := []enums.InvoiceStatus{
		enums.InvoiceStatusDraft,
		enums.InvoiceStatusSent,
		enums.InvoiceStatusPaid,
		enums.InvoiceStatusCancelled,
	}
	allowed := map[[2]enums.InvoiceStatus]bool{
		{enums.InvoiceStatusDraft, enums.InvoiceStatusSent}:     true,
		{enums.InvoiceStatusSent, enums.InvoiceStatusPaid}:      true,
		{enums.InvoiceStatusSent, enums.InvoiceStatusCancelled}: true,
		{enums.InvoiceStatusPaid, enums.InvoiceStatusCancelled}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			invoice := models.Invoice{InvoiceNumber: "RE-20260105-0001", Status: from}
			err := CheckTransition(adminActor, invoice, to)
			if allowed[[2]enums.InvoiceStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "%s -> %s: %v", from, to, err)
		}
	}
}

func TestCheckTransitionCapabilities(t *testing.T) {
	sent := models.Invoice{Status: enums.InvoiceStatusSent}

	assert.True(t, CanTransition(cashierActor, sent, enums.InvoiceStatusPaid))
	assert.True(t, CanTransition(systemActor, sent, enums.InvoiceStatusCancelled))
	assert.True(t, CanTransition(adminActor, sent, enums.InvoiceStatusCancelled))

	err := CheckTransition(cashierActor, sent, enums.InvoiceStatusCancelled)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = CheckTransition(resellerActor, sent, enums.InvoiceStatusPaid)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = CheckTransition(types.Actor{Role: enums.ActorRoleCashier}, sent, enums.InvoiceStatusPaid)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCheckTransitionRejectsUnknownTarget(t *testing.T) {
	err := CheckTransition(adminActor, models.Invoice{Status: enums.InvoiceStatusSent}, "archived")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCheckTransitionRefusesCancellingReversal(t *testing.T) {
	original := uuid.New()
	reversal := models.Invoice{InvoiceNumber: "STORNO-20260105-0001", Status: enums.InvoiceStatusSent, ReversalOfID: &original}

	err := CheckTransition(adminActor, reversal, enums.InvoiceStatusCancelled)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.True(t, CanTransition(adminActor, reversal, enums.InvoiceStatusPaid))
}
