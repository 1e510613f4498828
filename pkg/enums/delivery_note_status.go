package enums

import "fmt"

type DeliveryNoteStatus string

const (
	DeliveryNoteDelivered       DeliveryNoteStatus = "delivered"
	DeliveryNotePartiallyBilled DeliveryNoteStatus = "partially_billed"
	DeliveryNoteBilled          DeliveryNoteStatus = "billed"
)

var validDeliveryNoteStatuses = []DeliveryNoteStatus{
	DeliveryNoteDelivered,
	DeliveryNotePartiallyBilled,
	DeliveryNoteBilled,
}

func (s DeliveryNoteStatus) IsValid() bool {
	for _, candidate := range validDeliveryNoteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseDeliveryNoteStatus(value string) (DeliveryNoteStatus, error) {
	for _, candidate := range validDeliveryNoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery note status %q", value)
}
