package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
}

func TestScanJSONNullLeavesDestination(t *testing.T) {
	dst := []string{"keep"}
	require.NoError(t, ScanJSON(nil, &dst))
	require.Equal(t, []string{"keep"}, dst)

	require.NoError(t, ScanJSON([]byte(`["x"]`), &dst))
	require.Equal(t, []string{"x"}, dst)

	require.Error(t, ScanJSON(3.14, &dst))
}

func TestJSONValueEncodesAsString(t *testing.T) {
	v, err := JSONValue([]sample{{Name: "latte"}})
	require.NoError(t, err)
	require.Equal(t, `[{"name":"latte"}]`, v)

	var back []sample
	require.NoError(t, ScanJSON(v, &back))
	require.Equal(t, "latte", back[0].Name)
}
