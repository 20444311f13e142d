package enums

import "fmt"

// SubscriptionPaymentStatus is mutated exactly once by the gateway callback.
type SubscriptionPaymentStatus string

const (
	SubscriptionPaymentStatusPending   SubscriptionPaymentStatus = "PENDING"
	SubscriptionPaymentStatusSucceeded SubscriptionPaymentStatus = "SUCCEEDED"
	SubscriptionPaymentStatusFailed    SubscriptionPaymentStatus = "FAILED"
)

var validSubscriptionPaymentStatuses = []SubscriptionPaymentStatus{
	SubscriptionPaymentStatusPending,
	SubscriptionPaymentStatusSucceeded,
	SubscriptionPaymentStatusFailed,
}

// String implements fmt.Stringer.
func (s SubscriptionPaymentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionPaymentStatus) IsValid() bool {
	for _, candidate := range validSubscriptionPaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionPaymentStatus converts raw input into a SubscriptionPaymentStatus.
func ParseSubscriptionPaymentStatus(value string) (SubscriptionPaymentStatus, error) {
	for _, candidate := range validSubscriptionPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription payment status %q", value)
}

func (s SubscriptionPaymentStatus) IsTerminal() bool {
	return s == SubscriptionPaymentStatusSucceeded || s == SubscriptionPaymentStatusFailed
}
