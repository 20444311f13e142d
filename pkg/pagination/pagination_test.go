package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParamsNormalize(t *testing.T) {
	p := Params{}.Normalize()
	require.Equal(t, 1, p.Page)
	require.Equal(t, DefaultLimit, p.Limit)

	p = Params{Page: 3, Limit: 500}.Normalize()
	require.Equal(t, MaxLimit, p.Limit)
	require.Equal(t, 200, Params{Page: 3, Limit: 500}.Offset())
}

func TestNewPageRoundsPagesUp(t *testing.T) {
	page := NewPage([]string{"a", "b"}, 41, Params{Page: 2, Limit: 20})
	require.Equal(t, 3, page.Pages)
	require.Equal(t, 2, page.Page)
	require.EqualValues(t, 41, page.Total)

	empty := NewPage[string](nil, 0, Params{})
	require.NotNil(t, empty.Data)
	require.Zero(t, empty.Pages)
}
