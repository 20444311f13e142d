package enums

import "fmt"

type PaymentProvider string

const (
	PaymentProviderPayTR PaymentProvider = "PAYTR"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderPayTR,
}

// String implements fmt.Stringer.
func (s PaymentProvider) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
