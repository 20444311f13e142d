package enums

import "fmt"

// CashMovementType classifies cash drawer audit rows.
type CashMovementType string

const (
	CashMovementTypeOpening CashMovementType = "OPENING"
	CashMovementTypeClosing CashMovementType = "CLOSING"
	CashMovementTypeCashIn  CashMovementType = "CASH_IN"
	CashMovementTypeCashOut CashMovementType = "CASH_OUT"
)

var validCashMovementTypes = []CashMovementType{
	CashMovementTypeOpening,
	CashMovementTypeClosing,
	CashMovementTypeCashIn,
	CashMovementTypeCashOut,
}

// String implements fmt.Stringer.
func (s CashMovementType) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s CashMovementType) IsValid() bool {
	for _, candidate := range validCashMovementTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCashMovementType converts raw input into a CashMovementType.
func ParseCashMovementType(value string) (CashMovementType, error) {
	for _, candidate := range validCashMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cash movement type %q", value)
}
