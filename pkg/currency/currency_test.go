package currency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymbol(t *testing.T) {
	cases := map[string]string{
		"TRY":  "₺",
		"usd":  "$",
		" EUR": "€",
		"GBP":  "£",
		"JPY":  "JPY",
		"ZZZ":  DefaultSymbol,
		"":     DefaultSymbol,
	}
	for code, want := range cases {
		require.Equal(t, want, Symbol(code), code)
	}
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "EUR", Normalize("eur", "TRY"))
	require.Equal(t, "TRY", Normalize("nope", "TRY"))
}
