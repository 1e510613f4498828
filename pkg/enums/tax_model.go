package enums

import "fmt"

// TaxModel selects how VAT is derived from line totals.
type TaxModel string

const (
	// TaxModelStandard adds VAT on top of the net subtotal.
	TaxModelStandard TaxModel = "standard"
	// TaxModelSmallBusiness is the small-business exemption: no VAT at all.
	TaxModelSmallBusiness TaxModel = "kleinunternehmer"
	// TaxModelAgricultural is the flat-rate agricultural scheme: prices are
	// gross and VAT is extracted from them.
	TaxModelAgricultural TaxModel = "landwirtschaft"
)

var validTaxModels = []TaxModel{
	TaxModelStandard,
	TaxModelSmallBusiness,
	TaxModelAgricultural,
}

func (t TaxModel) String() string {
	return string(t)
}

func (t TaxModel) IsValid() bool {
	for _, candidate := range validTaxModels {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTaxModel converts raw input into a TaxModel.
func ParseTaxModel(value string) (TaxModel, error) {
	for _, candidate := range validTaxModels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tax model %q", value)
}
