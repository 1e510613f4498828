package enums

import "fmt"

// StockPool records which inventory a line item was deducted from.
type StockPool string

const (
	StockPoolPrimary     StockPool = "primary"
	StockPoolConsignment StockPool = "consignment"
	StockPoolNone        StockPool = "none"
)

var validStockPools = []StockPool{
	StockPoolPrimary,
	StockPoolConsignment,
	StockPoolNone,
}

func (p StockPool) String() string {
	return string(p)
}

func (p StockPool) IsValid() bool {
	for _, candidate := range validStockPools {
		if candidate == p {
			return true
		}
	}
	return false
}

// Tracked reports whether items in this pool hold stock to reinstate.
func (p StockPool) Tracked() bool {
	return p == StockPoolPrimary || p == StockPoolConsignment
}

func ParseStockPool(value string) (StockPool, error) {
	for _, candidate := range validStockPools {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock pool %q", value)
}
