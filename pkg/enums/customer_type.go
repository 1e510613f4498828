package enums

import "fmt"

// CustomerType classifies the buyer of an invoice; it also decides which stock
// pool a sale is taken from.
type CustomerType string

const (
	CustomerTypeEndCustomer CustomerType = "endkunde"
	CustomerTypeReseller    CustomerType = "wiederverkaeufer"
)

var validCustomerTypes = []CustomerType{
	CustomerTypeEndCustomer,
	CustomerTypeReseller,
}

func (c CustomerType) String() string {
	return string(c)
}

func (c CustomerType) IsValid() bool {
	for _, candidate := range validCustomerTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// StockPool returns the pool a sale to this customer type draws from.
func (c CustomerType) StockPool() StockPool {
	if c == CustomerTypeReseller {
		return StockPoolConsignment
	}
	return StockPoolPrimary
}

func ParseCustomerType(value string) (CustomerType, error) {
	for _, candidate := range validCustomerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid customer type %q", value)
}
