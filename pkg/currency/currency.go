// Package currency resolves display symbols for ISO 4217 currency codes.
package currency

import (
	"strings"

	"golang.org/x/text/currency"
)

// DefaultSymbol is returned for codes with no known symbol.
const DefaultSymbol = "₺"

var symbols = map[string]string{
	"TRY": "₺",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// Symbol returns the display symbol for code. Unknown or malformed codes fall
// back to DefaultSymbol; valid ISO codes without a mapped symbol render as the
// code itself.
func Symbol(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if sym, ok := symbols[normalized]; ok {
		return sym
	}
	unit, err := currency.ParseISO(normalized)
	if err != nil {
		return DefaultSymbol
	}
	return unit.String()
}

// Normalize returns the canonical ISO code, or fallback when code is not a
// recognized currency.
func Normalize(code, fallback string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fallback
	}
	return unit.String()
}
