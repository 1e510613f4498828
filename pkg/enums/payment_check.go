package enums

import "fmt"

// PaymentCheckStatus is the outcome of reconciling one payment notification.
type PaymentCheckStatus string

const (
	PaymentCheckMatched   PaymentCheckStatus = "matched"
	PaymentCheckMismatch  PaymentCheckStatus = "mismatch"
	PaymentCheckNotFound  PaymentCheckStatus = "not_found"
	PaymentCheckDuplicate PaymentCheckStatus = "duplicate"
)

var validPaymentCheckStatuses = []PaymentCheckStatus{
	PaymentCheckMatched,
	PaymentCheckMismatch,
	PaymentCheckNotFound,
	PaymentCheckDuplicate,
}

func (s PaymentCheckStatus) String() string {
	return string(s)
}

func (s PaymentCheckStatus) IsValid() bool {
	for _, candidate := range validPaymentCheckStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// NeedsReview reports outcomes that require a human to resolve the check.
func (s PaymentCheckStatus) NeedsReview() bool {
	return s == PaymentCheckMismatch || s == PaymentCheckNotFound || s == PaymentCheckDuplicate
}

func ParsePaymentCheckStatus(value string) (PaymentCheckStatus, error) {
	for _, candidate := range validPaymentCheckStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment check status %q", value)
}

// PaymentResolveAction is the manual decision taken on a reviewed check.
type PaymentResolveAction string

const (
	PaymentResolveMarkPaid PaymentResolveAction = "mark_paid"
	PaymentResolveIgnore   PaymentResolveAction = "ignore"
)

func (a PaymentResolveAction) IsValid() bool {
	return a == PaymentResolveMarkPaid || a == PaymentResolveIgnore
}

func ParsePaymentResolveAction(value string) (PaymentResolveAction, error) {
	action := PaymentResolveAction(value)
	if !action.IsValid() {
		return "", fmt.Errorf("invalid resolve action %q", value)
	}
	return action, nil
}
