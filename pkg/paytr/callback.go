package paytr

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	// ResponseOK and ResponseFail are the only bodies PayTR understands.
	ResponseOK   = "OK"
	ResponseFail = "FAIL"
)

// Callback is the notification PayTR posts once a payment settles.
type Callback struct {
	MerchantOID      string `json:"merchant_oid"`
	Status           string `json:"status"`
	TotalAmount      string `json:"total_amount"`
	Hash             string `json:"hash"`
	FailedReasonCode string `json:"failed_reason_code,omitempty"`
	FailedReasonMsg  string `json:"failed_reason_msg,omitempty"`
	TestMode         string `json:"test_mode,omitempty"`
	PaymentType      string `json:"payment_type,omitempty"`
	Currency         string `json:"currency,omitempty"`
}

// Succeeded reports whether the gateway settled the payment.
func (c Callback) Succeeded() bool {
	return strings.EqualFold(strings.TrimSpace(c.Status), StatusSuccess)
}

// Amount converts total_amount from minor units (kuruş) to currency units.
func (c Callback) Amount() (decimal.Decimal, error) {
	minor, err := decimal.NewFromString(strings.TrimSpace(c.TotalAmount))
	if err != nil {
		return decimal.Zero, err
	}
	return minor.Shift(-2), nil
}

// ToMinorUnits converts a currency amount to integer kuruş, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
