package enums

import "fmt"

// DocumentPrefix is the origin marker in front of every document number.
type DocumentPrefix string

const (
	PrefixInvoice      DocumentPrefix = "RE"
	PrefixCashSale     DocumentPrefix = "BAR"
	PrefixReversal     DocumentPrefix = "STORNO"
	PrefixSettlement   DocumentPrefix = "KOM"
	PrefixDeliveryNote DocumentPrefix = "LS"
	PrefixReminder     DocumentPrefix = "MA"
	PrefixOwnReceipt   DocumentPrefix = "EB"
)

var validDocumentPrefixes = []DocumentPrefix{
	PrefixInvoice,
	PrefixCashSale,
	PrefixReversal,
	PrefixSettlement,
	PrefixDeliveryNote,
	PrefixReminder,
	PrefixOwnReceipt,
}

func (p DocumentPrefix) String() string {
	return string(p)
}

func (p DocumentPrefix) IsValid() bool {
	for _, candidate := range validDocumentPrefixes {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsInvoicePrefix reports prefixes that may number an invoice row.
func (p DocumentPrefix) IsInvoicePrefix() bool {
	switch p {
	case PrefixInvoice, PrefixCashSale, PrefixReversal, PrefixSettlement:
		return true
	}
	return false
}

func ParseDocumentPrefix(value string) (DocumentPrefix, error) {
	for _, candidate := range validDocumentPrefixes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document prefix %q", value)
}
