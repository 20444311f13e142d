package enums

import "fmt"

// PaymentMethod describes how a payment was tendered at the till.
type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "CASH"
	PaymentMethodCard    PaymentMethod = "CARD"
	PaymentMethodDigital PaymentMethod = "DIGITAL"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodDigital,
}

// String implements fmt.Stringer.
func (s PaymentMethod) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
