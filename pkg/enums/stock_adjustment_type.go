package enums

import "fmt"

// StockAdjustmentType classifies a manual stock correction.
type StockAdjustmentType string

const (
	StockAdjustmentPrivateWithdrawal StockAdjustmentType = "eigenentnahme"
	StockAdjustmentGift              StockAdjustmentType = "geschenk"
	StockAdjustmentSpoilage          StockAdjustmentType = "verderb"
	StockAdjustmentBreakage          StockAdjustmentType = "bruch"
	StockAdjustmentInventoryPlus     StockAdjustmentType = "inventur_plus"
	StockAdjustmentInventoryMinus    StockAdjustmentType = "inventur_minus"
	StockAdjustmentCorrection        StockAdjustmentType = "korrektur"
	StockAdjustmentOther             StockAdjustmentType = "sonstiges"
)

var validStockAdjustmentTypes = []StockAdjustmentType{
	StockAdjustmentPrivateWithdrawal,
	StockAdjustmentGift,
	StockAdjustmentSpoilage,
	StockAdjustmentBreakage,
	StockAdjustmentInventoryPlus,
	StockAdjustmentInventoryMinus,
	StockAdjustmentCorrection,
	StockAdjustmentOther,
}

func (t StockAdjustmentType) String() string {
	return string(t)
}

func (t StockAdjustmentType) IsValid() bool {
	for _, candidate := range validStockAdjustmentTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// RequiresDocument reports adjustments that need their own receipt number.
func (t StockAdjustmentType) RequiresDocument() bool {
	return t == StockAdjustmentPrivateWithdrawal
}

// Reduces reports adjustment types that can only take stock away.
func (t StockAdjustmentType) Reduces() bool {
	switch t {
	case StockAdjustmentPrivateWithdrawal, StockAdjustmentGift, StockAdjustmentSpoilage,
		StockAdjustmentBreakage, StockAdjustmentInventoryMinus:
		return true
	}
	return false
}

// Adds reports adjustment types that can only add stock.
func (t StockAdjustmentType) Adds() bool {
	return t == StockAdjustmentInventoryPlus
}

func ParseStockAdjustmentType(value string) (StockAdjustmentType, error) {
	for _, candidate := range validStockAdjustmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock adjustment type %q", value)
}
