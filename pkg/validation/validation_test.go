package validation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
)

type sample struct {
	InvoiceID uuid.UUID `json:"invoice_id" validate:"required"`
	Action    string    `json:"action" validate:"required,oneof=mark_paid ignore"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	err := Struct(sample{Action: "refund"})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["invoice_id"])
	assert.Equal(t, "must be one of mark_paid ignore", details["action"])
	assert.Equal(t, "must be greater than 0", details["quantity"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	assert.NoError(t, Struct(sample{InvoiceID: uuid.New(), Action: "ignore", Quantity: 3}))
}
